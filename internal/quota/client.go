package quota

import (
	"sync"
	"time"

	"github.com/goalsmith/goalsmith/internal/metrics"
)

// ClientTracker is the advisory quota of a single local caller. Its answers
// only save a round trip; the server decides.
type ClientTracker struct {
	cfg   Config
	clock func() time.Time

	mu  sync.Mutex
	log eventLog
}

// NewClientTracker returns a tracker with a full budget. Invalid configs fall
// back to DefaultClientConfig.
func NewClientTracker(cfg Config, opts ...Option) *ClientTracker {
	if err := cfg.Validate(); err != nil {
		cfg = DefaultClientConfig
	}
	o := buildOptions(opts)
	return &ClientTracker{cfg: cfg, clock: o.clock}
}

// Limit returns the configured budget.
func (c *ClientTracker) Limit() Config {
	return c.cfg
}

// CheckLimit records an attempt and reports whether it fits the local budget.
func (c *ClientTracker) CheckLimit() bool {
	c.mu.Lock()
	allowed := c.log.tryRecord(c.now(), c.cfg)
	c.mu.Unlock()

	metrics.RecordQuotaDecision("client", allowed)
	return allowed
}

// RemainingRequests returns the local remaining budget without mutating it.
func (c *ClientTracker) RemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return remainingFor(c.cfg, c.log.count(c.now(), c.cfg.Window))
}

// Observe reconciles the local log with the remaining count reported by the
// server. The local budget is only ever tightened: when the server reports
// fewer remaining requests than the local log allows, synthetic events are
// recorded at the current instant until the two agree.
func (c *ClientTracker) Observe(serverRemaining int) {
	if serverRemaining < 0 {
		serverRemaining = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.log.prune(now, c.cfg.Window)
	for remainingFor(c.cfg, len(c.log.events)) > serverRemaining {
		c.log.events = append(c.log.events, now)
	}
}

// Reset restores the full budget.
func (c *ClientTracker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = eventLog{}
}

func (c *ClientTracker) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now()
}
