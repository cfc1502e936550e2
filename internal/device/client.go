package device

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/logger"
	"github.com/mohit83k/hotspot-console/internal/model"
)

// Resource paths on the device REST façade.
const (
	PathPPPActive      = "/ppp/active"
	PathPPPRemove      = "/ppp/active/remove"
	PathDHCPLeases     = "/ip/dhcp-server/lease"
	PathWireless       = "/interface/wireless/registration-table"
	PathInterfaces     = "/interface"
	PathMonitorTraffic = "/interface/monitor-traffic"
	PathResource       = "/system/resource"
	PathHealth         = "/system/health"
	PathHotspotActive  = "/ip/hotspot/active"
)

// Requester issues one authenticated device call. *Session implements it.
type Requester interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

var _ Requester = (*Session)(nil)

// Client provides typed reads over the device's resource collections. Each
// read is a single Requester call; retries are the Session's business.
type Client struct {
	session Requester
	log     logger.Logger
}

// NewClient returns a Client issuing calls through session.
func NewClient(session Requester, log logger.Logger) *Client {
	return &Client{session: session, log: log}
}

type wireSession struct {
	ID       string       `json:"id"`
	DotID    string       `json:".id"`
	Name     string       `json:"name"`
	Service  string       `json:"service"`
	CallerID string       `json:"caller-id"`
	Address  string       `json:"address"`
	Uptime   flexDuration `json:"uptime"`
	BytesIn  flexUint     `json:"bytes-in"`
	BytesOut flexUint     `json:"bytes-out"`
	Running  flexBool     `json:"running"`
}

// ActiveSessions returns the device's active PPP sessions.
func (c *Client) ActiveSessions(ctx context.Context) ([]model.DeviceSessionRecord, error) {
	var raw []wireSession
	if err := c.session.Do(ctx, http.MethodGet, PathPPPActive, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]model.DeviceSessionRecord, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.DeviceSessionRecord{
			ID:       firstNonEmpty(r.ID, r.DotID),
			Name:     r.Name,
			Service:  r.Service,
			CallerID: NormalizeMAC(r.CallerID),
			Address:  r.Address,
			Uptime:   durationOf(r.Uptime),
			BytesIn:  uint64(r.BytesIn),
			BytesOut: uint64(r.BytesOut),
			Running:  bool(r.Running),
		})
	}
	return out, nil
}

type wireLease struct {
	ID         string   `json:"id"`
	DotID      string   `json:".id"`
	Address    string   `json:"address"`
	MACAddress string   `json:"mac-address"`
	HostName   string   `json:"host-name"`
	Status     string   `json:"status"`
	Active     flexBool `json:"active"`
	LastSeen   string   `json:"last-seen"`
}

// DHCPLeases returns the DHCP lease table. A lease is active when the device
// flags it so or its status is "bound".
func (c *Client) DHCPLeases(ctx context.Context) ([]model.LeaseRecord, error) {
	var raw []wireLease
	if err := c.session.Do(ctx, http.MethodGet, PathDHCPLeases, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]model.LeaseRecord, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.LeaseRecord{
			ID:         firstNonEmpty(r.ID, r.DotID),
			Address:    r.Address,
			MACAddress: NormalizeMAC(r.MACAddress),
			HostName:   r.HostName,
			Status:     r.Status,
			Active:     bool(r.Active) || r.Status == "bound",
			LastSeen:   r.LastSeen,
		})
	}
	return out, nil
}

type wireRegistration struct {
	ID             string       `json:"id"`
	DotID          string       `json:".id"`
	Interface      string       `json:"interface"`
	MACAddress     string       `json:"mac-address"`
	Uptime         flexDuration `json:"uptime"`
	LastActivity   string       `json:"last-activity"`
	SignalStrength string       `json:"signal-strength"`
}

// WirelessRegistrations returns the wireless registration table. Devices
// without a wireless package answer with errs.KindUnsupported.
func (c *Client) WirelessRegistrations(ctx context.Context) ([]model.WirelessRegistration, error) {
	var raw []wireRegistration
	if err := c.session.Do(ctx, http.MethodGet, PathWireless, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]model.WirelessRegistration, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.WirelessRegistration{
			ID:             firstNonEmpty(r.ID, r.DotID),
			Interface:      r.Interface,
			MACAddress:     NormalizeMAC(r.MACAddress),
			Uptime:         durationOf(r.Uptime),
			LastActivity:   r.LastActivity,
			SignalStrength: r.SignalStrength,
		})
	}
	return out, nil
}

type wireInterface struct {
	ID       string   `json:"id"`
	DotID    string   `json:".id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Running  flexBool `json:"running"`
	Disabled flexBool `json:"disabled"`
	RxByte   flexUint `json:"rx-byte"`
	TxByte   flexUint `json:"tx-byte"`
}

// Interfaces returns interface status.
func (c *Client) Interfaces(ctx context.Context) ([]model.InterfaceStatus, error) {
	var raw []wireInterface
	if err := c.session.Do(ctx, http.MethodGet, PathInterfaces, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]model.InterfaceStatus, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.InterfaceStatus{
			ID:       firstNonEmpty(r.ID, r.DotID),
			Name:     r.Name,
			Type:     r.Type,
			Running:  bool(r.Running),
			Disabled: bool(r.Disabled),
			RxBytes:  uint64(r.RxByte),
			TxBytes:  uint64(r.TxByte),
		})
	}
	return out, nil
}

type wireResource struct {
	Uptime      flexDuration `json:"uptime"`
	CPULoad     flexUint     `json:"cpu-load"`
	FreeMemory  flexUint     `json:"free-memory"`
	TotalMemory flexUint     `json:"total-memory"`
	BoardName   string       `json:"board-name"`
	Version     string       `json:"version"`
}

// Resource returns CPU, memory and uptime telemetry.
func (c *Client) Resource(ctx context.Context) (model.ResourceUsage, error) {
	var r wireResource
	if err := c.session.Do(ctx, http.MethodGet, PathResource, nil, &r); err != nil {
		return model.ResourceUsage{}, err
	}
	return model.ResourceUsage{
		Uptime:      durationOf(r.Uptime),
		CPULoad:     uint64(r.CPULoad),
		FreeMemory:  uint64(r.FreeMemory),
		TotalMemory: uint64(r.TotalMemory),
		BoardName:   r.BoardName,
		Version:     r.Version,
	}, nil
}

// Health returns system health sensor readings.
func (c *Client) Health(ctx context.Context) ([]model.HealthReading, error) {
	var raw []model.HealthReading
	if err := c.session.Do(ctx, http.MethodGet, PathHealth, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type wireHotspotActive struct {
	ID         string       `json:"id"`
	DotID      string       `json:".id"`
	User       string       `json:"user"`
	Address    string       `json:"address"`
	MACAddress string       `json:"mac-address"`
	Uptime     flexDuration `json:"uptime"`
	BytesIn    flexUint     `json:"bytes-in"`
	BytesOut   flexUint     `json:"bytes-out"`
}

// HotspotActive returns the hotspot users currently logged in.
func (c *Client) HotspotActive(ctx context.Context) ([]model.HotspotActive, error) {
	var raw []wireHotspotActive
	if err := c.session.Do(ctx, http.MethodGet, PathHotspotActive, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]model.HotspotActive, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.HotspotActive{
			ID:         firstNonEmpty(r.ID, r.DotID),
			User:       r.User,
			Address:    r.Address,
			MACAddress: NormalizeMAC(r.MACAddress),
			Uptime:     durationOf(r.Uptime),
			BytesIn:    uint64(r.BytesIn),
			BytesOut:   uint64(r.BytesOut),
		})
	}
	return out, nil
}

type monitorTrafficRequest struct {
	Interface string `json:"interface"`
	Once      bool   `json:"once"`
}

type wireTraffic struct {
	Name               string   `json:"name"`
	RxBitsPerSecond    flexUint `json:"rx-bits-per-second"`
	TxBitsPerSecond    flexUint `json:"tx-bits-per-second"`
	RxPacketsPerSecond flexUint `json:"rx-packets-per-second"`
	TxPacketsPerSecond flexUint `json:"tx-packets-per-second"`
}

// InterfaceTraffic takes one traffic sample for the named interface.
func (c *Client) InterfaceTraffic(ctx context.Context, name string) (model.TrafficSample, error) {
	const op = "device.InterfaceTraffic"
	if name == "" {
		return model.TrafficSample{}, errs.E(errs.KindValidation, op, "interface name is required", nil)
	}

	var raw []wireTraffic
	req := monitorTrafficRequest{Interface: name, Once: true}
	if err := c.session.Do(ctx, http.MethodPost, PathMonitorTraffic, req, &raw); err != nil {
		return model.TrafficSample{}, err
	}
	if len(raw) == 0 {
		return model.TrafficSample{}, errs.E(errs.KindNotFound, op, "no traffic sample for interface "+name, nil)
	}
	r := raw[0]
	return model.TrafficSample{
		Name:               firstNonEmpty(r.Name, name),
		RxBitsPerSecond:    uint64(r.RxBitsPerSecond),
		TxBitsPerSecond:    uint64(r.TxBitsPerSecond),
		RxPacketsPerSecond: uint64(r.RxPacketsPerSecond),
		TxPacketsPerSecond: uint64(r.TxPacketsPerSecond),
	}, nil
}

type removeRequest struct {
	ID string `json:"id"`
}

// DisconnectSession tears down one active PPP session on the device.
func (c *Client) DisconnectSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errs.E(errs.KindValidation, "device.DisconnectSession", "session id is required", nil)
	}
	if err := c.session.Do(ctx, http.MethodPost, PathPPPRemove, removeRequest{ID: sessionID}, nil); err != nil {
		return err
	}
	c.log.WithFields(map[string]any{"session": sessionID}).Info("Disconnected device session")
	return nil
}

// SessionsWithLeaseInfo fetches active sessions and DHCP leases concurrently
// and joins them with JoinSessionsWithLeases.
func (c *Client) SessionsWithLeaseInfo(ctx context.Context) ([]model.SessionWithLease, error) {
	var (
		sessions []model.DeviceSessionRecord
		leases   []model.LeaseRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = c.ActiveSessions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		leases, err = c.DHCPLeases(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return JoinSessionsWithLeases(sessions, leases), nil
}

// RouterStatus fetches resource telemetry and interface status concurrently.
func (c *Client) RouterStatus(ctx context.Context) (model.RouterStatus, error) {
	var status model.RouterStatus
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		status.Resource, err = c.Resource(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		status.Interfaces, err = c.Interfaces(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.RouterStatus{}, err
	}
	return status, nil
}

// JoinSessionsWithLeases joins every session to the lease whose MAC address
// equals the session's caller id. Sessions without a matching lease are kept
// with a nil Lease and the session's own address; leases without a session
// are dropped. When several
// leases share a MAC the active one wins, then the first seen.
func JoinSessionsWithLeases(sessions []model.DeviceSessionRecord, leases []model.LeaseRecord) []model.SessionWithLease {
	byMAC := make(map[string]model.LeaseRecord, len(leases))
	for _, l := range leases {
		mac := NormalizeMAC(l.MACAddress)
		if mac == "" {
			continue
		}
		if prev, ok := byMAC[mac]; ok && (prev.Active || !l.Active) {
			continue
		}
		byMAC[mac] = l
	}

	out := make([]model.SessionWithLease, 0, len(sessions))
	for _, s := range sessions {
		mac := NormalizeMAC(s.CallerID)
		view := model.SessionWithLease{
			Session:    s,
			IPAddress:  s.Address,
			MACAddress: mac,
		}
		if lease, ok := byMAC[mac]; ok && mac != "" {
			lease := lease
			view.Lease = &lease
			view.IPAddress = lease.Address
		}
		out = append(out, view)
	}
	return out
}

func durationOf(d flexDuration) time.Duration {
	return time.Duration(d)
}
