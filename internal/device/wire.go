package device

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The REST façade returns most scalar values as JSON strings ("true",
// "1024", "1d2h3m"). These types accept both the string and the native
// JSON form.

type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || fl < 0 {
			return fmt.Errorf("invalid unsigned value %q", s)
		}
		n = uint64(fl)
	}
	*f = flexUint(n)
	return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(unquote(b)) {
	case "true", "yes", "1":
		*f = true
	case "false", "no", "0", "":
		*f = false
	default:
		return fmt.Errorf("invalid boolean value %s", b)
	}
	return nil
}

type flexDuration time.Duration

func (f *flexDuration) UnmarshalJSON(b []byte) error {
	d, err := ParseUptime(unquote(b))
	if err != nil {
		return err
	}
	*f = flexDuration(d)
	return nil
}

func unquote(b []byte) string {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return ""
	}
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		if s, err := strconv.Unquote(string(b)); err == nil {
			return strings.TrimSpace(s)
		}
		return string(b[1 : len(b)-1])
	}
	return string(b)
}

var uptimeUnits = map[string]time.Duration{
	"w":  7 * 24 * time.Hour,
	"d":  24 * time.Hour,
	"h":  time.Hour,
	"m":  time.Minute,
	"s":  time.Second,
	"ms": time.Millisecond,
}

// ParseUptime parses router uptime strings such as "1w2d3h4m5s",
// "5s120ms", "2d01:02:03", "01:02:03" or a bare number of seconds.
func ParseUptime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}

	var total time.Duration
	rest := s
	for rest != "" {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("invalid uptime %q", s)
		}
		// Clock suffix: the remainder is hh:mm:ss.
		if i < len(rest) && rest[i] == ':' {
			d, err := parseClock(rest)
			if err != nil {
				return 0, fmt.Errorf("invalid uptime %q", s)
			}
			return total + d, nil
		}
		n, _ := strconv.ParseInt(rest[:i], 10, 64)
		rest = rest[i:]

		j := 0
		for j < len(rest) && (rest[j] < '0' || rest[j] > '9') {
			j++
		}
		unit, ok := uptimeUnits[rest[:j]]
		if !ok {
			return 0, fmt.Errorf("invalid uptime %q", s)
		}
		total += time.Duration(n) * unit
		rest = rest[j:]
	}
	return total, nil
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	var d time.Duration
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, err
		}
		d += time.Duration(n) * units[i]
	}
	return d, nil
}

// NormalizeMAC upper-cases a MAC address and uses colon separators so the
// lease table and session caller ids compare equal.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
