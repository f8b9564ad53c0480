package quota

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goalsmith/goalsmith/internal/metrics"
	"github.com/goalsmith/goalsmith/internal/observability"
)

// UnknownIdentity is the shared bucket for callers without an address. All
// unidentified callers compete for one quota.
const UnknownIdentity = "unknown"

// Option configures a tracker.
type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// identityRecord is the quota state of one identity. The record lock makes
// check-and-record atomic for that identity. A record marked retired has been
// purged from the map and must not be written to.
type identityRecord struct {
	mu      sync.Mutex
	log     eventLog
	retired bool
}

// ServerTracker is the authoritative per-identity quota.
type ServerTracker struct {
	cfg   Config
	clock func() time.Time

	mu      sync.Mutex
	records map[string]*identityRecord

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServerTracker returns an empty tracker. Invalid configs fall back to
// DefaultServerConfig.
func NewServerTracker(cfg Config, opts ...Option) *ServerTracker {
	if err := cfg.Validate(); err != nil {
		cfg = DefaultServerConfig
	}
	o := buildOptions(opts)
	return &ServerTracker{
		cfg:      cfg,
		clock:    o.clock,
		records:  make(map[string]*identityRecord),
		stopChan: make(chan struct{}),
	}
}

// Limit returns the configured budget.
func (t *ServerTracker) Limit() Config {
	return t.cfg
}

// CheckLimit records an attempt for identity and reports whether it was
// accepted. Rejected attempts are not recorded.
func (t *ServerTracker) CheckLimit(identity string) bool {
	identity = normalizeIdentity(identity)

	for {
		rec := t.record(identity, true)

		rec.mu.Lock()
		if rec.retired {
			// Purged between lookup and lock; the map holds a fresh record now.
			rec.mu.Unlock()
			continue
		}
		allowed := rec.log.tryRecord(t.now(), t.cfg)
		rec.mu.Unlock()

		metrics.RecordQuotaDecision("server", allowed)
		if !allowed && observability.ServerLogger != nil {
			observability.ServerLogger.Debug("Quota exhausted",
				zap.String("identity", identity),
				zap.Int("max_requests", t.cfg.MaxRequests),
				zap.Duration("window", t.cfg.Window))
		}
		return allowed
	}
}

// Remaining returns how many more attempts identity may make in the current
// window. It does not mutate state.
func (t *ServerTracker) Remaining(identity string) int {
	identity = normalizeIdentity(identity)

	rec := t.record(identity, false)
	if rec == nil {
		return t.cfg.MaxRequests
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.retired {
		return t.cfg.MaxRequests
	}
	return remainingFor(t.cfg, rec.log.count(t.now(), t.cfg.Window))
}

// Len returns the number of identities currently tracked.
func (t *ServerTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Purge removes identities with no events in the trailing window and returns
// how many were removed. It only affects memory use, never quota decisions.
func (t *ServerTracker) Purge() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for identity, rec := range t.records {
		rec.mu.Lock()
		rec.log.prune(now, t.cfg.Window)
		if rec.log.empty() {
			rec.retired = true
			delete(t.records, identity)
			removed++
		}
		rec.mu.Unlock()
	}
	return removed
}

// StartSweeper purges idle identities every interval until ctx is cancelled
// or Stop is called.
func (t *ServerTracker) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = t.cfg.Window
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stopChan:
				return
			case <-ticker.C:
				removed := t.Purge()
				metrics.RecordQuotaPurge(removed)
				metrics.SetQuotaIdentities(t.Len())
				if removed > 0 && observability.ServerLogger != nil {
					observability.ServerLogger.Debug("Purged idle quota records",
						zap.Int("removed", removed),
						zap.Int("tracked", t.Len()))
				}
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit. Safe to call repeatedly.
func (t *ServerTracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
	t.wg.Wait()
}

func (t *ServerTracker) record(identity string, create bool) *identityRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[identity]
	if !ok && create {
		rec = &identityRecord{}
		t.records[identity] = rec
	}
	return rec
}

func (t *ServerTracker) now() time.Time {
	if t.clock != nil {
		return t.clock()
	}
	return time.Now()
}

func normalizeIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return UnknownIdentity
	}
	return identity
}
