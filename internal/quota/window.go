package quota

import "time"

// eventLog is a sliding-window log of accepted request instants, oldest first.
// It is not safe for concurrent use; owners guard it.
type eventLog struct {
	events []time.Time
}

// windowStart returns the exclusive lower bound of the trailing window ending
// at now. An event recorded exactly one window ago no longer counts.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}

// prune drops events that fell out of the trailing window.
func (l *eventLog) prune(now time.Time, window time.Duration) {
	cutoff := windowStart(now, window)
	idx := 0
	for idx < len(l.events) && !l.events[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return
	}
	remaining := copy(l.events, l.events[idx:])
	clear(l.events[remaining:])
	l.events = l.events[:remaining]
}

// count returns the number of events inside the trailing window without
// mutating the log.
func (l *eventLog) count(now time.Time, window time.Duration) int {
	cutoff := windowStart(now, window)
	n := 0
	for i := len(l.events) - 1; i >= 0; i-- {
		if !l.events[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}

// tryRecord records now when fewer than limit events remain in the window.
func (l *eventLog) tryRecord(now time.Time, cfg Config) bool {
	l.prune(now, cfg.Window)
	if len(l.events) >= cfg.MaxRequests {
		return false
	}
	l.events = append(l.events, now)
	return true
}

func (l *eventLog) empty() bool {
	return len(l.events) == 0
}

func remainingFor(cfg Config, used int) int {
	remaining := cfg.MaxRequests - used
	if remaining < 0 {
		return 0
	}
	if remaining > cfg.MaxRequests {
		return cfg.MaxRequests
	}
	return remaining
}
