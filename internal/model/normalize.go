package model

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// NormalizeAddress applies the §3 address invariants: no scheme
// duplication, no trailing slash for HTTP forms. TCP/database targets
// are host[:port] pairs and are left scheme-free.
func NormalizeAddress(addr string, kind TargetKind) string {
	addr = strings.TrimSpace(addr)
	switch kind {
	case KindTCP, KindDatabase:
		return strings.TrimSuffix(addr, "/")
	default:
		// Scheme-less addresses are left as they are; the Probe Engine
		// prepends https:// at dial time. A repeated scheme prefix
		// ("https://https://host") is collapsed to the innermost one.
		addr = strings.TrimSuffix(addr, "/")
		for {
			lower := strings.ToLower(addr)
			n := 0
			switch {
			case strings.HasPrefix(lower, "https://"):
				n = len("https://")
			case strings.HasPrefix(lower, "http://"):
				n = len("http://")
			}
			rest := lower[n:]
			if n == 0 || !(strings.HasPrefix(rest, "http://") || strings.HasPrefix(rest, "https://")) {
				return addr
			}
			addr = addr[n:]
		}
	}
}

// NormalizeDaysOfWeek clamps the legacy 0-7 range (7 aliased to Sunday
// in the source this spec was distilled from) down to the canonical
// 0-6 range used everywhere in this package. See Open Question #4.
func NormalizeDaysOfWeek(days []int) []int {
	if len(days) == 0 {
		return nil
	}
	out := make([]int, 0, len(days))
	seen := make(map[int]bool, len(days))
	for _, d := range days {
		if d == 7 {
			d = 0
		}
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// isEnabled mirrors the teacher's nil-means-true convention for optional
// boolean config fields threaded through from the REST collaborator.
func isEnabled(b *bool) bool {
	return b == nil || *b
}

// InWindow implements the §4.1(6)/§4.5(2) midnight-spanning window
// semantics: start<=end is the closed interval [start,end]; start>end
// spans midnight and matches now>=start || now<=end.
func InWindow(w TimeWindow, now time.Time) bool {
	if w.IsAlwaysOn() {
		return true
	}
	nowMinutes := now.Hour()*60 + now.Minute()
	start, okS := parseHHMM(w.Start)
	end, okE := parseHHMM(w.End)
	if !okS || !okE {
		return true
	}
	if start <= end {
		return nowMinutes >= start && nowMinutes <= end
	}
	return nowMinutes >= start || nowMinutes <= end
}

// InAnyWindow reports whether now matches at least one window in ws, or
// true if ws is empty (absence means always-on).
func InAnyWindow(ws []TimeWindow, now time.Time) bool {
	if len(ws) == 0 {
		return true
	}
	for _, w := range ws {
		if InWindow(w, now) {
			return true
		}
	}
	return false
}

func parseHHMM(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// MatchesDayOfWeek reports whether now's weekday (in loc) is in days, or
// true if days is empty (every day).
func MatchesDayOfWeek(days []int, now time.Time, loc *time.Location) bool {
	if len(days) == 0 {
		return true
	}
	weekday := int(now.In(loc).Weekday())
	for _, d := range days {
		if d == weekday {
			return true
		}
	}
	return false
}

// SplitHostPort applies the TCP probing rule: default port 80 if
// omitted, reject empty host.
func SplitHostPort(addr string) (host string, port string, err error) {
	if addr == "" {
		return "", "", &net.AddrError{Err: "empty host", Addr: addr}
	}
	if !strings.Contains(addr, ":") {
		return addr, "80", nil
	}
	host, port, err = net.SplitHostPort(addr)
	if err != nil {
		return "", "", err
	}
	if host == "" {
		return "", "", &net.AddrError{Err: "empty host", Addr: addr}
	}
	return host, port, nil
}
