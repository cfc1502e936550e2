// Package coa sends RFC 5176 Disconnect-Request packets to a NAS.
package coa

import (
	"context"
	"fmt"
	"net"
	"time"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/rfc3576"

	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/logger"
	"github.com/mohit83k/hotspot-console/internal/metrics"
	"github.com/mohit83k/hotspot-console/internal/model"
)

const defaultTimeout = 3 * time.Second

// Target identifies the session to terminate.
type Target struct {
	Username        string
	SessionID       string
	FramedIPAddress string
}

// NASResolver looks up the registered NAS, and with it the shared secret,
// for an address.
type NASResolver interface {
	NASByAddress(ctx context.Context, addr string) (model.NAS, error)
}

// Disconnector sends Disconnect-Requests to the NAS that owns a session.
type Disconnector struct {
	registry NASResolver
	port     string
	timeout  time.Duration
	log      logger.Logger
	client   *radius.Client
}

// NewDisconnector returns a Disconnector that talks to port on each NAS.
func NewDisconnector(registry NASResolver, port string, timeout time.Duration, log logger.Logger) *Disconnector {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Disconnector{
		registry: registry,
		port:     port,
		timeout:  timeout,
		log:      log,
		client:   &radius.Client{Retry: time.Second},
	}
}

// Disconnect asks the NAS at nasAddr to terminate the target session. A NAK
// is returned as errs.KindDeviceUnavailable carrying the NAS's Error-Cause.
func (d *Disconnector) Disconnect(ctx context.Context, nasAddr string, target Target) (err error) {
	const op = "coa.Disconnect"
	defer func() { metrics.DisconnectRequestsTotal.WithLabelValues(outcome(err)).Inc() }()

	if target.Username == "" && target.SessionID == "" {
		return errs.E(errs.KindValidation, op, "username or session id required", nil)
	}

	nas, err := d.registry.NASByAddress(ctx, nasAddr)
	if err != nil {
		return err
	}

	packet := radius.New(radius.CodeDisconnectRequest, []byte(nas.Secret))
	if target.Username != "" {
		if err := rfc2865.UserName_SetString(packet, target.Username); err != nil {
			return errs.E(errs.KindValidation, op, "invalid username", err)
		}
	}
	if target.SessionID != "" {
		if err := rfc2866.AcctSessionID_SetString(packet, target.SessionID); err != nil {
			return errs.E(errs.KindValidation, op, "invalid session id", err)
		}
	}
	if ip := net.ParseIP(target.FramedIPAddress); ip != nil && ip.To4() != nil {
		if err := rfc2865.FramedIPAddress_Set(packet, ip); err != nil {
			return errs.E(errs.KindValidation, op, "invalid framed ip", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	addr := net.JoinHostPort(nasAddr, d.port)
	resp, err := d.client.Exchange(ctx, packet, addr)
	if err != nil {
		return errs.E(errs.KindDeviceUnavailable, op, "no reply from "+addr, err)
	}

	switch resp.Code {
	case radius.CodeDisconnectACK:
		d.log.WithFields(map[string]any{
			"nas":        nasAddr,
			"username":   target.Username,
			"session_id": target.SessionID,
		}).Info("Session disconnected")
		return nil
	case radius.CodeDisconnectNAK:
		msg := "disconnect rejected"
		if cause, err := rfc3576.ErrorCause_Lookup(resp); err == nil {
			msg = fmt.Sprintf("disconnect rejected: %s", cause)
		}
		return errs.E(errs.KindDeviceUnavailable, op, msg, nil)
	default:
		return errs.E(errs.KindDeviceUnavailable, op, fmt.Sprintf("unexpected reply code %v", resp.Code), nil)
	}
}

func outcome(err error) string {
	if err == nil {
		return "ack"
	}
	if errs.Is(err, errs.KindDeviceUnavailable) {
		return "failed"
	}
	return string(errs.KindOf(err))
}
