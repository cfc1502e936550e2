package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/rfc2869"

	"github.com/mohit83k/hotspot-console/internal/logger"
	"github.com/mohit83k/hotspot-console/internal/model"
)

// --- Mocks ---

type mockStore struct {
	mu       sync.Mutex
	requests []model.AccountingRequest
	err      error
}

func (m *mockStore) ApplyAccounting(_ context.Context, req model.AccountingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.err
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type mockLogger struct {
	mu       sync.Mutex
	lastMsg  string
	lastErr  error
	lastData map[string]any
}

func (l *mockLogger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastMsg = msg
}
func (l *mockLogger) Warn(msg string) { l.Info(msg) }
func (l *mockLogger) Error(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastErr = err
}
func (l *mockLogger) WithFields(fields map[string]any) logger.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastData = fields
	return l
}

type mockUDPConn struct {
	called  bool
	payload []byte
	addr    net.Addr
	err     error
}

func (m *mockUDPConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	m.called = true
	m.payload = b
	m.addr = addr
	return len(b), m.err
}

// Unused, present to satisfy net.PacketConn.
func (m *mockUDPConn) ReadFrom([]byte) (int, net.Addr, error) { return 0, nil, nil }
func (m *mockUDPConn) Close() error                           { return nil }
func (m *mockUDPConn) LocalAddr() net.Addr                    { return nil }
func (m *mockUDPConn) SetDeadline(time.Time) error            { return nil }
func (m *mockUDPConn) SetReadDeadline(time.Time) error        { return nil }
func (m *mockUDPConn) SetWriteDeadline(time.Time) error       { return nil }

var secret = []byte("testing123")

func newPacket(status rfc2866.AcctStatusType) *radius.Packet {
	pkt := radius.New(radius.CodeAccountingRequest, secret)
	rfc2865.UserName_AddString(pkt, "testuser")
	rfc2866.AcctStatusType_Add(pkt, status)
	rfc2866.AcctSessionID_AddString(pkt, "abc123")
	return pkt
}

// --- Tests ---

func TestHandlePacket_ValidRequest(t *testing.T) {
	store := &mockStore{}
	s := &Server{Secret: secret, Store: store, Logger: &mockLogger{}}

	pkt := newPacket(rfc2866.AcctStatusType_Value_Stop)
	rfc2865.NASIPAddress_Add(pkt, net.ParseIP("10.0.0.254"))
	rfc2865.FramedIPAddress_Add(pkt, net.ParseIP("10.0.0.1"))
	rfc2865.CallingStationID_AddString(pkt, "AA:BB:CC:DD:EE:FF")
	rfc2865.CalledStationID_AddString(pkt, "hotspot1")
	rfc2869.NASPortID_AddString(pkt, "bridge1")
	rfc2866.AcctSessionTime_Add(pkt, 600)
	rfc2866.AcctInputOctets_Add(pkt, 5)
	rfc2869.AcctInputGigawords_Add(pkt, 1)
	rfc2866.AcctOutputOctets_Add(pkt, 7)
	rfc2866.AcctTerminateCause_Add(pkt, rfc2866.AcctTerminateCause_Value_UserRequest)
	eventTime := time.Date(2025, 6, 21, 10, 0, 0, 0, time.UTC)
	rfc2869.EventTimestamp_Add(pkt, eventTime)

	data, err := pkt.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s.handlePacket(context.Background(), nil, data, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12345})

	if store.count() != 1 {
		t.Fatalf("expected 1 recorded request, got %d", store.count())
	}
	req := store.requests[0]
	if req.Username != "testuser" || req.StatusType != model.AcctStatusStop || req.SessionID != "abc123" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.NASIPAddress != "10.0.0.254" || req.FramedIPAddress != "10.0.0.1" || req.NASPortID != "bridge1" {
		t.Errorf("unexpected addressing: %+v", req)
	}
	if req.InputOctets != 1<<32+5 || req.OutputOctets != 7 || req.SessionTime != 600 {
		t.Errorf("unexpected counters: %+v", req)
	}
	if req.TerminateCause != "User-Request" {
		t.Errorf("expected terminate cause User-Request, got %q", req.TerminateCause)
	}
	if !req.EventTime.Equal(eventTime) {
		t.Errorf("expected event time %s, got %s", eventTime, req.EventTime)
	}
}

func TestHandlePacket_DefaultsNASAddressAndTime(t *testing.T) {
	store := &mockStore{}
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Server{Secret: secret, Store: store, Logger: &mockLogger{}, now: func() time.Time { return fixed }}

	data, _ := newPacket(rfc2866.AcctStatusType_Value_Start).Encode()
	s.handlePacket(context.Background(), nil, data, &net.UDPAddr{IP: net.ParseIP("192.168.88.1"), Port: 1})

	if store.count() != 1 {
		t.Fatalf("expected 1 recorded request, got %d", store.count())
	}
	req := store.requests[0]
	if req.NASIPAddress != "192.168.88.1" {
		t.Errorf("expected NAS address from packet source, got %q", req.NASIPAddress)
	}
	if req.FramedIPAddress != "" {
		t.Errorf("expected empty framed ip, got %q", req.FramedIPAddress)
	}
	if !req.EventTime.Equal(fixed) {
		t.Errorf("expected receive time, got %s", req.EventTime)
	}
}

func TestHandlePacket_InvalidPacket(t *testing.T) {
	store := &mockStore{}
	s := &Server{Secret: secret, Logger: &mockLogger{}, Store: store}

	s.handlePacket(context.Background(), nil, []byte("not-radius"), &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234})

	if store.count() != 0 {
		t.Errorf("garbage must not reach the store")
	}
}

func TestHandlePacket_BadAuthenticator(t *testing.T) {
	store := &mockStore{}
	conn := &mockUDPConn{}
	s := &Server{Secret: secret, Logger: &mockLogger{}, Store: store}

	pkt := radius.New(radius.CodeAccountingRequest, []byte("wrong-secret"))
	rfc2866.AcctStatusType_Add(pkt, rfc2866.AcctStatusType_Value_Start)
	data, _ := pkt.Encode()

	s.handlePacket(context.Background(), conn, data, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234})

	if store.count() != 0 || conn.called {
		t.Errorf("request signed with another secret must be dropped silently")
	}
}

func TestHandlePacket_SendsResponse(t *testing.T) {
	conn := &mockUDPConn{}
	s := &Server{Secret: secret, Store: &mockStore{}, Logger: &mockLogger{}}

	pkt := newPacket(rfc2866.AcctStatusType_Value_Start)
	data, _ := pkt.Encode()
	s.handlePacket(context.Background(), conn, data, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999})

	if !conn.called {
		t.Fatal("expected WriteTo to be called, but it was not")
	}
	resp, err := radius.Parse(conn.payload, secret)
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Code != radius.CodeAccountingResponse || resp.Identifier != pkt.Identifier {
		t.Errorf("unexpected response code %v id %d", resp.Code, resp.Identifier)
	}
	if !radius.IsAuthenticResponse(conn.payload, data, secret) {
		t.Errorf("response authenticator does not match request")
	}
}

func TestHandlePacket_NoResponseWhenStoreFails(t *testing.T) {
	conn := &mockUDPConn{}
	log := &mockLogger{}
	s := &Server{Secret: secret, Store: &mockStore{err: errors.New("db down")}, Logger: log}

	data, _ := newPacket(rfc2866.AcctStatusType_Value_InterimUpdate).Encode()
	s.handlePacket(context.Background(), conn, data, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999})

	if conn.called {
		t.Errorf("NAS must not be acknowledged when the request was not stored")
	}
	if log.lastErr == nil {
		t.Errorf("expected store failure to be logged")
	}
}

func TestHandlePacket_IgnoresNonAccountingPacket(t *testing.T) {
	log := &mockLogger{}
	s := &Server{Secret: secret, Logger: log, Store: &mockStore{}}

	pkt := radius.New(radius.CodeAccessRequest, secret) // wrong code
	data, _ := pkt.Encode()

	s.handlePacket(context.Background(), nil, data, &net.UDPAddr{})

	if log.lastMsg == "" || log.lastData["type"] != radius.CodeAccessRequest {
		t.Errorf("expected log for non-accounting packet, got: %+v", log.lastData)
	}
}

func TestServe_ProcessesPacketAndStops(t *testing.T) {
	store := &mockStore{}
	srv := &Server{Secret: secret, Store: store, Logger: &mockLogger{}}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, conn) }()

	pkt := newPacket(rfc2866.AcctStatusType_Value_Start)
	resp, err := radius.Exchange(context.Background(), pkt, conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if resp.Code != radius.CodeAccountingResponse {
		t.Errorf("expected Accounting-Response, got %v", resp.Code)
	}
	if store.count() != 1 {
		t.Errorf("expected 1 recorded request, got %d", store.count())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}
