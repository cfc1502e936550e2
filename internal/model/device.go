package model

import "time"

// DeviceSessionRecord is an active PPP session reported live by the router.
type DeviceSessionRecord struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Service  string        `json:"service"`
	CallerID string        `json:"caller_id"`
	Address  string        `json:"address"`
	Uptime   time.Duration `json:"uptime"`
	BytesIn  uint64        `json:"bytes_in"`
	BytesOut uint64        `json:"bytes_out"`
	Running  bool          `json:"running"`
}

// LeaseRecord is a DHCP lease. MACAddress is normalized (upper case, colon
// separated) so it can be compared with a session's caller id.
type LeaseRecord struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	MACAddress string `json:"mac_address"`
	HostName   string `json:"host_name"`
	Status     string `json:"status"`
	Active     bool   `json:"active"`
	LastSeen   string `json:"last_seen"`
}

// WirelessRegistration is one entry of the wireless registration table.
type WirelessRegistration struct {
	ID             string        `json:"id"`
	Interface      string        `json:"interface"`
	MACAddress     string        `json:"mac_address"`
	Uptime         time.Duration `json:"uptime"`
	LastActivity   string        `json:"last_activity"`
	SignalStrength string        `json:"signal_strength"`
}

// InterfaceStatus describes one router interface.
type InterfaceStatus struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Running  bool   `json:"running"`
	Disabled bool   `json:"disabled"`
	RxBytes  uint64 `json:"rx_bytes"`
	TxBytes  uint64 `json:"tx_bytes"`
}

// ResourceUsage is the router's system resource telemetry.
type ResourceUsage struct {
	Uptime      time.Duration `json:"uptime"`
	CPULoad     uint64        `json:"cpu_load"`
	FreeMemory  uint64        `json:"free_memory"`
	TotalMemory uint64        `json:"total_memory"`
	BoardName   string        `json:"board_name"`
	Version     string        `json:"version"`
}

// HealthReading is one system health sensor value.
type HealthReading struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

// HotspotActive is a logged-in hotspot user.
type HotspotActive struct {
	ID         string        `json:"id"`
	User       string        `json:"user"`
	Address    string        `json:"address"`
	MACAddress string        `json:"mac_address"`
	Uptime     time.Duration `json:"uptime"`
	BytesIn    uint64        `json:"bytes_in"`
	BytesOut   uint64        `json:"bytes_out"`
}

// TrafficSample is a single monitor-traffic reading for an interface.
type TrafficSample struct {
	Name               string `json:"name"`
	RxBitsPerSecond    uint64 `json:"rx_bits_per_second"`
	TxBitsPerSecond    uint64 `json:"tx_bits_per_second"`
	RxPacketsPerSecond uint64 `json:"rx_packets_per_second"`
	TxPacketsPerSecond uint64 `json:"tx_packets_per_second"`
}

// RouterStatus combines resource telemetry with interface state.
type RouterStatus struct {
	Resource   ResourceUsage     `json:"resource"`
	Interfaces []InterfaceStatus `json:"interfaces"`
}
