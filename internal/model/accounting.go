package model

import "time"

// AccountingRecord is one radacct row: a single network session as recorded
// by the accounting backend.
type AccountingRecord struct {
	ID               int64      `json:"id"`
	SessionID        string     `json:"acct_session_id"`
	Username         string     `json:"username"`
	NASIPAddress     string     `json:"nas_ip_address"`
	NASPortID        string     `json:"nas_port_id"`
	StartTime        *time.Time `json:"acct_start_time"`
	StopTime         *time.Time `json:"acct_stop_time"`
	SessionTime      int64      `json:"acct_session_time"`
	InputOctets      int64      `json:"acct_input_octets"`
	OutputOctets     int64      `json:"acct_output_octets"`
	TerminateCause   string     `json:"acct_terminate_cause"`
	FramedIPAddress  string     `json:"framed_ip_address"`
	CallingStationID string     `json:"calling_station_id"`
}

// Active reports whether the session is still open.
func (r AccountingRecord) Active() bool {
	return r.StopTime == nil
}

// Accounting-Request status types.
const (
	AcctStatusStart   = "Start"
	AcctStatusStop    = "Stop"
	AcctStatusInterim = "Interim-Update"
)

// AccountingRequest is the parsed content of a RADIUS Accounting-Request.
type AccountingRequest struct {
	StatusType       string    `json:"acct_status_type"`
	SessionID        string    `json:"acct_session_id"`
	Username         string    `json:"username"`
	NASIPAddress     string    `json:"nas_ip_address"`
	NASPortID        string    `json:"nas_port_id"`
	FramedIPAddress  string    `json:"framed_ip_address"`
	CallingStationID string    `json:"calling_station_id"`
	CalledStationID  string    `json:"called_station_id"`
	SessionTime      int64     `json:"acct_session_time"`
	InputOctets      int64     `json:"acct_input_octets"`
	OutputOctets     int64     `json:"acct_output_octets"`
	TerminateCause   string    `json:"acct_terminate_cause"`
	EventTime        time.Time `json:"event_time"`
	ClientIP         string    `json:"client_ip"`
}

// NAS is a registered network access server.
type NAS struct {
	ID          int64  `json:"id"`
	Name        string `json:"nasname"`
	ShortName   string `json:"shortname"`
	Type        string `json:"type"`
	Ports       int    `json:"ports"`
	Secret      string `json:"-"`
	Server      string `json:"server"`
	Community   string `json:"community"`
	Description string `json:"description"`
}

// DashboardCounters are the accounting-side dashboard numbers. The four
// counts are taken independently and are not a single snapshot.
type DashboardCounters struct {
	TotalUsers     int64 `json:"total_users"`
	ActiveSessions int64 `json:"active_sessions"`
	TotalNAS       int64 `json:"total_nas"`
	TodaySessions  int64 `json:"today_sessions"`
}
