package correlation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/logger"
	"github.com/mohit83k/hotspot-console/internal/model"
)

// --- Mocks ---

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *mockLogger) Info(string) {}
func (l *mockLogger) Warn(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *mockLogger) Error(error)                             {}
func (l *mockLogger) WithFields(map[string]any) logger.Logger { return l }

type fakeDevice struct {
	sessions   []model.DeviceSessionRecord
	joined     []model.SessionWithLease
	leases     []model.LeaseRecord
	wireless   []model.WirelessRegistration
	resource   model.ResourceUsage
	interfaces []model.InterfaceStatus
	errs       map[string]error
}

func (f *fakeDevice) ActiveSessions(context.Context) ([]model.DeviceSessionRecord, error) {
	return f.sessions, f.errs["sessions"]
}
func (f *fakeDevice) SessionsWithLeaseInfo(context.Context) ([]model.SessionWithLease, error) {
	return f.joined, f.errs["joined"]
}
func (f *fakeDevice) DHCPLeases(context.Context) ([]model.LeaseRecord, error) {
	return f.leases, f.errs["leases"]
}
func (f *fakeDevice) WirelessRegistrations(context.Context) ([]model.WirelessRegistration, error) {
	return f.wireless, f.errs["wireless"]
}
func (f *fakeDevice) Resource(context.Context) (model.ResourceUsage, error) {
	return f.resource, f.errs["resource"]
}
func (f *fakeDevice) Interfaces(context.Context) ([]model.InterfaceStatus, error) {
	return f.interfaces, f.errs["interfaces"]
}

type fakeStore struct {
	active   []model.AccountingRecord
	members  []model.GroupMembership
	counters model.DashboardCounters
	creds    map[string]model.Credential
	history  []model.AccountingRecord
	err      error
}

func (f *fakeStore) ActiveSessions(context.Context) ([]model.AccountingRecord, error) {
	return f.active, f.err
}
func (f *fakeStore) GroupMemberships(context.Context) ([]model.GroupMembership, error) {
	return f.members, f.err
}
func (f *fakeStore) DashboardCounters(context.Context) (model.DashboardCounters, error) {
	return f.counters, f.err
}
func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (model.Credential, error) {
	if f.err != nil {
		return model.Credential{}, f.err
	}
	c, ok := f.creds[username]
	if !ok {
		return model.Credential{}, errs.E(errs.KindNotFound, "fake", "no such user", nil)
	}
	return c, nil
}
func (f *fakeStore) SessionsForUser(context.Context, string, int) ([]model.AccountingRecord, error) {
	return f.history, f.err
}

var (
	errUnreachable = errs.E(errs.KindDeviceUnavailable, "fake", "unreachable", errors.New("connection refused"))
	errUnsupported = errs.E(errs.KindUnsupported, "fake", "no such resource", nil)
	errStoreDown   = errs.E(errs.KindStoreUnavailable, "fake", "down", nil)
)

func live(name, ip, mac string) model.SessionWithLease {
	return model.SessionWithLease{
		Session:    model.DeviceSessionRecord{Name: name, CallerID: mac, Uptime: time.Minute, BytesIn: 10, BytesOut: 20, Running: true},
		IPAddress:  ip,
		MACAddress: mac,
	}
}

// --- Sessions ---

func TestSessions_MatchedDeviceOnlyAndAccountingOnly(t *testing.T) {
	dev := &fakeDevice{joined: []model.SessionWithLease{
		live("bob", "10.0.0.5", "AA:BB"),
		live("walkin", "10.0.0.9", "CC:DD"),
	}}
	store := &fakeStore{
		active: []model.AccountingRecord{
			{ID: 3, Username: "bob", FramedIPAddress: "10.0.0.99"},
			{ID: 2, Username: "bob", FramedIPAddress: "10.0.0.5"},
			{ID: 1, Username: "carol", FramedIPAddress: "10.0.0.7", SessionTime: 90, InputOctets: 5, CallingStationID: "ee-ff"},
		},
		members: []model.GroupMembership{{Username: "bob", Groupname: "premium", Priority: 1}},
	}
	e := NewEngine(dev, store, &mockLogger{})

	report, err := e.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if !report.DeviceAvailable || report.DeviceFault != nil {
		t.Errorf("expected device available, got %+v", report)
	}

	byStatus := map[model.MatchStatus][]model.CorrelatedSessionView{}
	for _, v := range report.Sessions {
		byStatus[v.Status] = append(byStatus[v.Status], v)
	}

	matched := byStatus[model.MatchBoth]
	if len(matched) != 1 || matched[0].Username != "bob" || matched[0].Accounting.ID != 2 {
		t.Fatalf("expected bob matched to the row with the lease ip, got %+v", matched)
	}
	if matched[0].Group != "premium" || matched[0].IPAddress != "10.0.0.5" || matched[0].Device == nil {
		t.Errorf("unexpected matched view %+v", matched[0])
	}

	if d := byStatus[model.MatchDeviceOnly]; len(d) != 1 || d[0].Username != "walkin" || d[0].Accounting != nil {
		t.Errorf("expected walkin as device-only, got %+v", d)
	}

	acctOnly := byStatus[model.MatchAccountingOnly]
	if len(acctOnly) != 2 {
		t.Fatalf("expected bob's second row and carol as accounting-only, got %+v", acctOnly)
	}
	for _, v := range acctOnly {
		if v.Username == "carol" && (v.MACAddress != "EE:FF" || v.Uptime != 90*time.Second || v.Upload != 5) {
			t.Errorf("unexpected carol view %+v", v)
		}
	}
}

func TestSessions_DeviceDownMarksUnverified(t *testing.T) {
	dev := &fakeDevice{errs: map[string]error{"joined": errUnreachable}}
	store := &fakeStore{active: []model.AccountingRecord{{Username: "bob"}, {Username: "carol"}}}
	log := &mockLogger{}
	e := NewEngine(dev, store, log)

	report, err := e.Sessions(context.Background())
	if err != nil {
		t.Fatalf("device failure must degrade, got %v", err)
	}
	if report.DeviceAvailable {
		t.Error("expected device unavailable")
	}
	if report.DeviceFault == nil || report.DeviceFault.Kind != string(errs.KindDeviceUnavailable) {
		t.Errorf("unexpected fault %+v", report.DeviceFault)
	}
	if len(report.Sessions) != 2 {
		t.Fatalf("accounting rows must still be listed, got %d", len(report.Sessions))
	}
	for _, v := range report.Sessions {
		if v.Status != model.MatchUnverified {
			t.Errorf("expected unverified, got %s", v.Status)
		}
	}
	if len(log.warns) == 0 {
		t.Error("expected degradation to be logged")
	}
}

func TestSessions_DeviceUnsupportedIsEmpty(t *testing.T) {
	dev := &fakeDevice{errs: map[string]error{"joined": errUnsupported}}
	store := &fakeStore{active: []model.AccountingRecord{{Username: "bob"}}}
	e := NewEngine(dev, store, &mockLogger{})

	report, err := e.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if !report.DeviceAvailable || len(report.Sessions) != 1 || report.Sessions[0].Status != model.MatchAccountingOnly {
		t.Errorf("unsupported must read as an empty collection, got %+v", report)
	}
}

func TestSessions_StoreFailureIsFatal(t *testing.T) {
	e := NewEngine(&fakeDevice{}, &fakeStore{err: errStoreDown}, &mockLogger{})
	if _, err := e.Sessions(context.Background()); !errs.Is(err, errs.KindStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

// --- Network devices ---

func TestNetworkDevices_Classification(t *testing.T) {
	dev := &fakeDevice{
		leases: []model.LeaseRecord{
			{ID: "*1", Address: "10.0.0.2", MACAddress: "AA:AA:AA:AA:AA:01", HostName: "phone", Active: true},
			{ID: "*2", Address: "10.0.0.3", MACAddress: "AA:AA:AA:AA:AA:02", Active: false},
		},
		wireless: []model.WirelessRegistration{{MACAddress: "aa-aa-aa-aa-aa-01"}},
	}
	e := NewEngine(dev, &fakeStore{}, &mockLogger{})

	report, err := e.NetworkDevices(context.Background())
	if err != nil {
		t.Fatalf("NetworkDevices: %v", err)
	}
	if report.Devices[0].Type != model.ConnWiFi || report.Devices[1].Type != model.ConnWired {
		t.Errorf("unexpected classification %+v", report.Devices)
	}
	if report.Devices[1].Name != "AA:AA:AA:AA:AA:02" {
		t.Errorf("expected mac as fallback name, got %q", report.Devices[1].Name)
	}
	want := model.NetworkDeviceStats{Total: 2, WiFi: 1, Wired: 1, Online: 1}
	if report.Stats != want {
		t.Errorf("got stats %+v, want %+v", report.Stats, want)
	}
}

func TestNetworkDevices_WirelessUnsupportedMeansWired(t *testing.T) {
	dev := &fakeDevice{
		leases: []model.LeaseRecord{{MACAddress: "AA:AA:AA:AA:AA:01"}},
		errs:   map[string]error{"wireless": errUnsupported},
	}
	e := NewEngine(dev, &fakeStore{}, &mockLogger{})

	report, _ := e.NetworkDevices(context.Background())
	if !report.WirelessAvailable || report.DeviceFault != nil {
		t.Errorf("unsupported wireless is not a fault, got %+v", report)
	}
	if report.Devices[0].Type != model.ConnWired {
		t.Errorf("expected wired, got %s", report.Devices[0].Type)
	}
}

func TestNetworkDevices_WirelessUnreachableIsUnknown(t *testing.T) {
	dev := &fakeDevice{
		leases: []model.LeaseRecord{{MACAddress: "AA:AA:AA:AA:AA:01"}},
		errs:   map[string]error{"wireless": errUnreachable},
	}
	e := NewEngine(dev, &fakeStore{}, &mockLogger{})

	report, _ := e.NetworkDevices(context.Background())
	if report.WirelessAvailable || report.DeviceFault == nil || !report.DeviceAvailable {
		t.Errorf("expected flagged wireless outage, got %+v", report)
	}
	if report.Devices[0].Type != model.ConnUnknown {
		t.Errorf("expected unknown type, got %s", report.Devices[0].Type)
	}
}

func TestNetworkDevices_LeasesUnreachable(t *testing.T) {
	dev := &fakeDevice{errs: map[string]error{"leases": errUnreachable}}
	e := NewEngine(dev, &fakeStore{}, &mockLogger{})

	report, err := e.NetworkDevices(context.Background())
	if err != nil {
		t.Fatalf("NetworkDevices: %v", err)
	}
	if report.DeviceAvailable || len(report.Devices) != 0 || report.Devices == nil {
		t.Errorf("expected empty, non-nil list with device unavailable, got %+v", report)
	}
}

// --- Dashboard ---

func TestDashboard_DeviceFailureKeepsCounters(t *testing.T) {
	counters := model.DashboardCounters{TotalUsers: 4, ActiveSessions: 2, TotalNAS: 1, TodaySessions: 3}
	dev := &fakeDevice{errs: map[string]error{"resource": errUnreachable}}
	e := NewEngine(dev, &fakeStore{counters: counters}, &mockLogger{})

	dash, err := e.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("device failure must not fail the dashboard: %v", err)
	}
	if dash.Counters != counters {
		t.Errorf("counters lost: %+v", dash.Counters)
	}
	if dash.Device != nil || dash.DeviceAvailable || dash.DeviceFault == nil {
		t.Errorf("expected device fields marked unavailable, got %+v", dash)
	}
}

func TestDashboard_Live(t *testing.T) {
	dev := &fakeDevice{
		sessions:   []model.DeviceSessionRecord{{Name: "a"}, {Name: "b"}},
		leases:     []model.LeaseRecord{{ID: "1"}},
		resource:   model.ResourceUsage{CPULoad: 12},
		interfaces: []model.InterfaceStatus{{Name: "ether1"}},
	}
	e := NewEngine(dev, &fakeStore{counters: model.DashboardCounters{TotalUsers: 1}}, &mockLogger{})

	dash, err := e.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if !dash.DeviceAvailable || dash.Device == nil {
		t.Fatalf("expected device stats, got %+v", dash)
	}
	if dash.Device.ActiveSessions != 2 || dash.Device.TotalLeases != 1 || dash.Device.Resource.CPULoad != 12 {
		t.Errorf("unexpected device stats %+v", dash.Device)
	}
}

func TestDashboard_StoreFailureIsFatal(t *testing.T) {
	e := NewEngine(&fakeDevice{}, &fakeStore{err: errStoreDown}, &mockLogger{})
	if _, err := e.Dashboard(context.Background()); !errs.Is(err, errs.KindStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

// --- Subscriber ---

func TestSubscriber(t *testing.T) {
	dev := &fakeDevice{joined: []model.SessionWithLease{live("alice", "10.0.0.5", "AA:BB"), live("bob", "10.0.0.6", "CC:DD")}}
	store := &fakeStore{
		creds:   map[string]model.Credential{"bob": {Username: "bob", Group: "users"}},
		history: []model.AccountingRecord{{Username: "bob"}},
	}
	e := NewEngine(dev, store, &mockLogger{})

	view, err := e.Subscriber(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Subscriber: %v", err)
	}
	if view.Credential.Username != "bob" || len(view.History) != 1 {
		t.Errorf("unexpected view %+v", view)
	}
	if view.Online == nil || view.Online.IPAddress != "10.0.0.6" {
		t.Errorf("expected bob online at 10.0.0.6, got %+v", view.Online)
	}

	if _, err := e.Subscriber(context.Background(), "ghost"); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSubscriber_DeviceDown(t *testing.T) {
	dev := &fakeDevice{errs: map[string]error{"joined": errUnreachable}}
	store := &fakeStore{creds: map[string]model.Credential{"bob": {Username: "bob"}}}
	e := NewEngine(dev, store, &mockLogger{})

	view, err := e.Subscriber(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Subscriber: %v", err)
	}
	if view.DeviceAvailable || view.Online != nil || view.DeviceFault == nil {
		t.Errorf("expected degraded view, got %+v", view)
	}
}
