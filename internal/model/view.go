package model

import "time"

// SessionWithLease is a device session joined to the lease whose MAC matches
// its caller id. Lease is nil when no lease matched.
type SessionWithLease struct {
	Session    DeviceSessionRecord `json:"session"`
	IPAddress  string              `json:"ip_address,omitempty"`
	MACAddress string              `json:"mac_address"`
	Lease      *LeaseRecord        `json:"lease"`
}

// MatchStatus tells which sources contributed to a correlated view.
type MatchStatus string

const (
	MatchBoth           MatchStatus = "matched"
	MatchDeviceOnly     MatchStatus = "device-only"
	MatchAccountingOnly MatchStatus = "accounting-only"
	// MatchUnverified marks accounting rows emitted while the device could
	// not be queried.
	MatchUnverified MatchStatus = "unverified"
)

// CorrelatedSessionView merges live device state with accounting state for
// one subscriber session. It is recomputed on every request.
type CorrelatedSessionView struct {
	Username   string            `json:"username"`
	Status     MatchStatus       `json:"status"`
	IPAddress  string            `json:"ip_address,omitempty"`
	MACAddress string            `json:"mac_address,omitempty"`
	Group      string            `json:"groupname,omitempty"`
	Uptime     time.Duration     `json:"uptime,omitempty"`
	Upload     uint64            `json:"upload"`
	Download   uint64            `json:"download"`
	Running    bool              `json:"running"`
	Device     *SessionWithLease `json:"device,omitempty"`
	Accounting *AccountingRecord `json:"accounting,omitempty"`
}

// DeviceFault describes why device-side data is missing from a view.
type DeviceFault struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionReport is the merged session view.
type SessionReport struct {
	Sessions        []CorrelatedSessionView `json:"sessions"`
	DeviceAvailable bool                    `json:"device_available"`
	DeviceFault     *DeviceFault            `json:"device_fault,omitempty"`
}

// Connection types of a network device.
const (
	ConnWiFi    = "wifi"
	ConnWired   = "wired"
	ConnUnknown = "unknown"
)

// NetworkDevice is a device holding a DHCP lease, classified by connection type.
type NetworkDevice struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IPAddress  string `json:"ip_address"`
	MACAddress string `json:"mac_address"`
	Type       string `json:"type"`
	LastSeen   string `json:"last_seen"`
	Online     bool   `json:"online"`
}

// NetworkDeviceStats summarizes a device list.
type NetworkDeviceStats struct {
	Total  int `json:"total"`
	WiFi   int `json:"wifi"`
	Wired  int `json:"wired"`
	Online int `json:"online"`
}

// DeviceReport is the network-device view.
type DeviceReport struct {
	Devices           []NetworkDevice    `json:"devices"`
	Stats             NetworkDeviceStats `json:"stats"`
	DeviceAvailable   bool               `json:"device_available"`
	WirelessAvailable bool               `json:"wireless_available"`
	DeviceFault       *DeviceFault       `json:"device_fault,omitempty"`
}

// DeviceStats are the live, device-derived dashboard fields.
type DeviceStats struct {
	ActiveSessions int               `json:"active_sessions"`
	TotalLeases    int               `json:"total_leases"`
	Resource       ResourceUsage     `json:"resource"`
	Interfaces     []InterfaceStatus `json:"interfaces"`
}

// Dashboard combines accounting counters with live device stats. Device is
// nil when the device could not be queried.
type Dashboard struct {
	Counters        DashboardCounters `json:"counters"`
	Device          *DeviceStats      `json:"device,omitempty"`
	DeviceAvailable bool              `json:"device_available"`
	DeviceFault     *DeviceFault      `json:"device_fault,omitempty"`
}

// SubscriberView is one subscriber's credential, recent history and live
// session, if any.
type SubscriberView struct {
	Credential      Credential         `json:"credential"`
	History         []AccountingRecord `json:"history"`
	Online          *SessionWithLease  `json:"online,omitempty"`
	DeviceAvailable bool               `json:"device_available"`
	DeviceFault     *DeviceFault       `json:"device_fault,omitempty"`
}
