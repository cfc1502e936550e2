// Package server receives RADIUS Accounting-Request packets from the NAS and
// records them in the accounting store.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/rfc2869"

	"github.com/mohit83k/hotspot-console/internal/logger"
	"github.com/mohit83k/hotspot-console/internal/metrics"
	"github.com/mohit83k/hotspot-console/internal/model"
)

// Store records one accounting request.
type Store interface {
	ApplyAccounting(ctx context.Context, req model.AccountingRequest) error
}

// Server handles incoming RADIUS Accounting-Request packets.
type Server struct {
	Addr   string
	Secret []byte
	Store  Store
	Logger logger.Logger
	now    func() time.Time
}

// NewServer returns a new RADIUS accounting server.
func NewServer(addr string, secret string, store Store, log logger.Logger) *Server {
	return &Server{
		Addr:   addr,
		Secret: []byte(secret),
		Store:  store,
		Logger: log,
	}
}

// ListenAndServe listens for RADIUS packets and processes them until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	return s.Serve(ctx, conn)
}

// Serve processes packets read from conn until ctx is cancelled. conn is
// closed on return.
func (s *Server) Serve(ctx context.Context, conn *net.UDPConn) error {
	defer conn.Close()

	s.Logger.Info("RADIUS accounting server listening on " + conn.LocalAddr().String())
	go func() {
		<-ctx.Done()
		_ = conn.Close() // unblocks ReadFromUDP
	}()

	buf := make([]byte, radius.MaxPacketLength)
	for {
		n, remoteAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				s.Logger.Info("Shutting down RADIUS accounting server")
				return nil
			}
			s.Logger.Error(fmt.Errorf("failed to read UDP: %w", err))
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		go s.handlePacket(ctx, conn, data, remoteAddr)
	}
}

func (s *Server) handlePacket(ctx context.Context, conn net.PacketConn, data []byte, remoteAddr *net.UDPAddr) {
	packet, err := radius.Parse(data, s.Secret)
	if err != nil {
		s.Logger.WithFields(map[string]any{
			"bytes": len(data),
			"from":  remoteAddr.String(),
		}).Error(err)
		return
	}

	if packet.Code != radius.CodeAccountingRequest {
		s.Logger.WithFields(map[string]any{"type": packet.Code}).Info("Ignoring non-accounting packet")
		return
	}

	if !radius.IsAuthenticRequest(data, s.Secret) {
		metrics.AccountingPacketsTotal.WithLabelValues("unknown", "bad_authenticator").Inc()
		s.Logger.WithFields(map[string]any{"from": remoteAddr.String()}).Warn("Dropping accounting request with bad authenticator")
		return
	}

	req := s.parseRequest(packet, remoteAddr)

	if err := s.Store.ApplyAccounting(ctx, req); err != nil {
		metrics.AccountingPacketsTotal.WithLabelValues(req.StatusType, "error").Inc()
		s.Logger.Error(fmt.Errorf("failed to record accounting request: %w", err))
		return
	}
	metrics.AccountingPacketsTotal.WithLabelValues(req.StatusType, "ok").Inc()

	s.Logger.WithFields(map[string]any{
		"username": req.Username,
		"status":   req.StatusType,
		"session":  req.SessionID,
		"nas":      req.NASIPAddress,
	}).Info("Recorded accounting request")

	// The NAS retransmits until it sees the Accounting-Response, so it is
	// only sent once the request is stored.
	encodedResp, err := packet.Response(radius.CodeAccountingResponse).Encode()
	if err != nil {
		s.Logger.Error(fmt.Errorf("failed to encode response: %w", err))
		return
	}
	if conn != nil {
		if _, err := conn.WriteTo(encodedResp, remoteAddr); err != nil {
			s.Logger.Error(fmt.Errorf("failed to send response: %w", err))
		}
	}
}

// parseRequest extracts the accounting attributes. Octet counters include the
// gigaword wrap counts, and the NAS address falls back to the packet source.
func (s *Server) parseRequest(packet *radius.Packet, remoteAddr *net.UDPAddr) model.AccountingRequest {
	req := model.AccountingRequest{
		StatusType:       rfc2866.AcctStatusType_Get(packet).String(),
		SessionID:        rfc2866.AcctSessionID_GetString(packet),
		Username:         rfc2865.UserName_GetString(packet),
		NASIPAddress:     ipString(rfc2865.NASIPAddress_Get(packet)),
		NASPortID:        rfc2869.NASPortID_GetString(packet),
		FramedIPAddress:  ipString(rfc2865.FramedIPAddress_Get(packet)),
		CallingStationID: rfc2865.CallingStationID_GetString(packet),
		CalledStationID:  rfc2865.CalledStationID_GetString(packet),
		SessionTime:      int64(rfc2866.AcctSessionTime_Get(packet)),
		InputOctets:      octets(uint32(rfc2866.AcctInputOctets_Get(packet)), uint32(rfc2869.AcctInputGigawords_Get(packet))),
		OutputOctets:     octets(uint32(rfc2866.AcctOutputOctets_Get(packet)), uint32(rfc2869.AcctOutputGigawords_Get(packet))),
		EventTime:        rfc2869.EventTimestamp_Get(packet),
		ClientIP:         remoteAddr.IP.String(),
	}

	if cause, err := rfc2866.AcctTerminateCause_Lookup(packet); err == nil {
		req.TerminateCause = cause.String()
	}
	if req.NASIPAddress == "" {
		req.NASIPAddress = req.ClientIP
	}
	if req.EventTime.IsZero() || req.EventTime.Unix() == 0 {
		now := time.Now
		if s.now != nil {
			now = s.now
		}
		req.EventTime = now().UTC()
	}
	return req
}

func octets(low, gigawords uint32) int64 {
	return int64(gigawords)<<32 | int64(low)
}

func ipString(ip net.IP) string {
	if ip == nil || ip.IsUnspecified() {
		return ""
	}
	return ip.String()
}
