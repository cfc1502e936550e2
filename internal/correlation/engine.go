// Package correlation builds the operator views by joining live device state
// with accounting state. Accounting failures fail the view; device failures
// only remove the device's contribution.
package correlation

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohit83k/hotspot-console/internal/device"
	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/logger"
	"github.com/mohit83k/hotspot-console/internal/metrics"
	"github.com/mohit83k/hotspot-console/internal/model"
)

const subscriberHistoryLimit = 20

// DeviceSource is the live side of the join.
type DeviceSource interface {
	ActiveSessions(ctx context.Context) ([]model.DeviceSessionRecord, error)
	SessionsWithLeaseInfo(ctx context.Context) ([]model.SessionWithLease, error)
	DHCPLeases(ctx context.Context) ([]model.LeaseRecord, error)
	WirelessRegistrations(ctx context.Context) ([]model.WirelessRegistration, error)
	Resource(ctx context.Context) (model.ResourceUsage, error)
	Interfaces(ctx context.Context) ([]model.InterfaceStatus, error)
}

// AccountingSource is the durable side of the join.
type AccountingSource interface {
	ActiveSessions(ctx context.Context) ([]model.AccountingRecord, error)
	GroupMemberships(ctx context.Context) ([]model.GroupMembership, error)
	DashboardCounters(ctx context.Context) (model.DashboardCounters, error)
	GetUserByUsername(ctx context.Context, username string) (model.Credential, error)
	SessionsForUser(ctx context.Context, username string, limit int) ([]model.AccountingRecord, error)
}

// Engine recomputes every view on each call; nothing is cached.
type Engine struct {
	device DeviceSource
	store  AccountingSource
	log    logger.Logger
}

// NewEngine returns an Engine over the two sources.
func NewEngine(dev DeviceSource, store AccountingSource, log logger.Logger) *Engine {
	return &Engine{device: dev, store: store, log: log}
}

// Sessions merges device sessions with open accounting sessions. Device
// sessions are joined to accounting rows by username, preferring the row
// whose framed IP equals the lease IP. Rows found on only one side are kept
// and flagged. When the device cannot be queried every accounting row is
// reported as unverified.
func (e *Engine) Sessions(ctx context.Context) (model.SessionReport, error) {
	var (
		live    []model.SessionWithLease
		liveErr error
		acct    []model.AccountingRecord
		members []model.GroupMembership
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		live, liveErr = e.device.SessionsWithLeaseInfo(gctx)
		return nil
	})
	g.Go(func() (err error) {
		acct, err = e.store.ActiveSessions(gctx)
		return err
	})
	g.Go(func() (err error) {
		members, err = e.store.GroupMemberships(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.SessionReport{}, err
	}

	report := model.SessionReport{DeviceAvailable: true}
	if liveErr != nil && !errs.Is(liveErr, errs.KindUnsupported) {
		report.DeviceAvailable = false
		report.DeviceFault = e.degrade("sessions", liveErr)
		live = nil
	}

	report.Sessions = JoinSessions(live, acct, groupsByUser(members), report.DeviceAvailable)
	return report, nil
}

// JoinSessions is the session join used by Sessions. deviceAvailable=false
// marks accounting-only rows as unverified instead of accounting-only.
func JoinSessions(live []model.SessionWithLease, acct []model.AccountingRecord, groups map[string]string, deviceAvailable bool) []model.CorrelatedSessionView {
	byUser := make(map[string][]int, len(acct))
	for i, r := range acct {
		byUser[r.Username] = append(byUser[r.Username], i)
	}
	used := make([]bool, len(acct))

	views := make([]model.CorrelatedSessionView, 0, len(live)+len(acct))
	for i := range live {
		l := &live[i]
		name := l.Session.Name
		v := model.CorrelatedSessionView{
			Username:   name,
			Status:     model.MatchDeviceOnly,
			IPAddress:  l.IPAddress,
			MACAddress: l.MACAddress,
			Group:      groups[name],
			Uptime:     l.Session.Uptime,
			Upload:     l.Session.BytesIn,
			Download:   l.Session.BytesOut,
			Running:    l.Session.Running,
			Device:     l,
		}

		if idx := pickAccounting(byUser[name], acct, used, l.IPAddress); idx >= 0 {
			used[idx] = true
			v.Status = model.MatchBoth
			v.Accounting = &acct[idx]
			if v.IPAddress == "" {
				v.IPAddress = acct[idx].FramedIPAddress
			}
		}
		views = append(views, v)
	}

	status := model.MatchAccountingOnly
	if !deviceAvailable {
		status = model.MatchUnverified
	}
	for i := range acct {
		if used[i] {
			continue
		}
		r := &acct[i]
		views = append(views, model.CorrelatedSessionView{
			Username:   r.Username,
			Status:     status,
			IPAddress:  r.FramedIPAddress,
			MACAddress: device.NormalizeMAC(r.CallingStationID),
			Group:      groups[r.Username],
			Uptime:     time.Duration(r.SessionTime) * time.Second,
			Upload:     uint64(r.InputOctets),
			Download:   uint64(r.OutputOctets),
			Accounting: r,
		})
	}
	return views
}

// pickAccounting returns the unused candidate whose framed IP equals ip, or
// else the first unused candidate (the most recent, as rows arrive start
// time descending). It returns -1 when none is left.
func pickAccounting(candidates []int, acct []model.AccountingRecord, used []bool, ip string) int {
	first := -1
	for _, idx := range candidates {
		if used[idx] {
			continue
		}
		if ip != "" && acct[idx].FramedIPAddress == ip {
			return idx
		}
		if first < 0 {
			first = idx
		}
	}
	return first
}

// groupsByUser keeps the first (highest priority) group per username.
func groupsByUser(members []model.GroupMembership) map[string]string {
	groups := make(map[string]string, len(members))
	for _, m := range members {
		if _, ok := groups[m.Username]; !ok {
			groups[m.Username] = m.Groupname
		}
	}
	return groups
}

// NetworkDevices lists every leased device classified as wifi when its MAC
// is in the wireless registration table and wired otherwise. A device
// without a wireless interface yields an empty table, so everything is wired.
// If the table cannot be read the type is unknown.
func (e *Engine) NetworkDevices(ctx context.Context) (model.DeviceReport, error) {
	var (
		leases      []model.LeaseRecord
		leaseErr    error
		regs        []model.WirelessRegistration
		wirelessErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		leases, leaseErr = e.device.DHCPLeases(ctx)
		return nil
	})
	g.Go(func() error {
		regs, wirelessErr = e.device.WirelessRegistrations(ctx)
		return nil
	})
	_ = g.Wait()

	report := model.DeviceReport{
		Devices:           []model.NetworkDevice{},
		DeviceAvailable:   true,
		WirelessAvailable: true,
	}
	if leaseErr != nil && !errs.Is(leaseErr, errs.KindUnsupported) {
		report.DeviceAvailable = false
		report.WirelessAvailable = false
		report.DeviceFault = e.degrade("devices", leaseErr)
		return report, nil
	}
	if wirelessErr != nil && !errs.Is(wirelessErr, errs.KindUnsupported) {
		report.WirelessAvailable = false
		report.DeviceFault = e.degrade("devices", wirelessErr)
	}

	wifi := make(map[string]bool, len(regs))
	for _, r := range regs {
		wifi[device.NormalizeMAC(r.MACAddress)] = true
	}

	for _, l := range leases {
		d := model.NetworkDevice{
			ID:         l.ID,
			Name:       l.HostName,
			IPAddress:  l.Address,
			MACAddress: l.MACAddress,
			LastSeen:   l.LastSeen,
			Online:     l.Active,
		}
		if d.Name == "" {
			d.Name = l.MACAddress
		}
		switch {
		case !report.WirelessAvailable:
			d.Type = model.ConnUnknown
		case wifi[device.NormalizeMAC(l.MACAddress)]:
			d.Type = model.ConnWiFi
		default:
			d.Type = model.ConnWired
		}
		report.Devices = append(report.Devices, d)
	}
	report.Stats = deviceStats(report.Devices)
	return report, nil
}

func deviceStats(devices []model.NetworkDevice) model.NetworkDeviceStats {
	st := model.NetworkDeviceStats{Total: len(devices)}
	for _, d := range devices {
		switch d.Type {
		case model.ConnWiFi:
			st.WiFi++
		case model.ConnWired:
			st.Wired++
		}
		if d.Online {
			st.Online++
		}
	}
	return st
}

// Dashboard combines the accounting counters with live device stats. The
// counters are always returned; Device is nil when the device failed.
func (e *Engine) Dashboard(ctx context.Context) (model.Dashboard, error) {
	var (
		counters   model.DashboardCounters
		sessions   []model.DeviceSessionRecord
		leases     []model.LeaseRecord
		resource   model.ResourceUsage
		interfaces []model.InterfaceStatus
		devErrs    = make([]error, 4)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counters, err = e.store.DashboardCounters(gctx)
		return err
	})
	g.Go(func() error {
		sessions, devErrs[0] = e.device.ActiveSessions(gctx)
		return nil
	})
	g.Go(func() error {
		leases, devErrs[1] = e.device.DHCPLeases(gctx)
		return nil
	})
	g.Go(func() error {
		resource, devErrs[2] = e.device.Resource(gctx)
		return nil
	})
	g.Go(func() error {
		interfaces, devErrs[3] = e.device.Interfaces(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.Dashboard{}, err
	}

	dash := model.Dashboard{Counters: counters, DeviceAvailable: true}
	for _, err := range devErrs {
		if err != nil && !errs.Is(err, errs.KindUnsupported) {
			dash.DeviceAvailable = false
			dash.DeviceFault = e.degrade("dashboard", err)
			return dash, nil
		}
	}

	if interfaces == nil {
		interfaces = []model.InterfaceStatus{}
	}
	dash.Device = &model.DeviceStats{
		ActiveSessions: len(sessions),
		TotalLeases:    len(leases),
		Resource:       resource,
		Interfaces:     interfaces,
	}
	return dash, nil
}

// Subscriber returns one user's credential, recent history and live session.
func (e *Engine) Subscriber(ctx context.Context, username string) (model.SubscriberView, error) {
	var (
		view    = model.SubscriberView{DeviceAvailable: true}
		live    []model.SessionWithLease
		liveErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		view.Credential, err = e.store.GetUserByUsername(gctx, username)
		return err
	})
	g.Go(func() (err error) {
		view.History, err = e.store.SessionsForUser(gctx, username, subscriberHistoryLimit)
		return err
	})
	g.Go(func() error {
		live, liveErr = e.device.SessionsWithLeaseInfo(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.SubscriberView{}, err
	}

	if liveErr != nil && !errs.Is(liveErr, errs.KindUnsupported) {
		view.DeviceAvailable = false
		view.DeviceFault = e.degrade("subscriber", liveErr)
		return view, nil
	}
	for i := range live {
		if live[i].Session.Name == username {
			view.Online = &live[i]
			break
		}
	}
	return view, nil
}

func (e *Engine) degrade(view string, err error) *model.DeviceFault {
	kind := errs.KindOf(err)
	if kind == "" {
		kind = errs.KindDeviceUnavailable
	}
	metrics.DegradedViewsTotal.WithLabelValues(view, string(kind)).Inc()
	e.log.WithFields(map[string]any{
		"view": view,
		"kind": string(kind),
	}).Warn("Serving view without device data: " + err.Error())
	return &model.DeviceFault{Kind: string(kind), Message: err.Error()}
}
