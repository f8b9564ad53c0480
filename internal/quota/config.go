// Package quota implements request quotas for the task-generation endpoint.
//
// Two trackers share one sliding-window log algorithm:
//   - ServerTracker is authoritative and keyed by caller identity.
//   - ClientTracker is advisory and tracks a single local identity so callers
//     can skip a round trip that the server would reject anyway.
//
// State lives in process memory only. Running several server processes gives
// each its own quota; the limit holds per instance, not globally.
package quota

import (
	"fmt"
	"time"
)

// Config is a fixed request budget over a trailing window.
type Config struct {
	Window      time.Duration `mapstructure:"window" validate:"gt=0"`
	MaxRequests int           `mapstructure:"max_requests" validate:"gt=0"`
}

// DefaultServerConfig is the authoritative per-identity budget.
var DefaultServerConfig = Config{Window: time.Hour, MaxRequests: 10}

// DefaultClientConfig is the advisory budget. It must stay at least as strict
// as the server budget.
var DefaultClientConfig = Config{Window: time.Hour, MaxRequests: 5}

// Validate reports whether the config describes a usable budget.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("quota window must be positive, got %s", c.Window)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("quota max requests must be positive, got %d", c.MaxRequests)
	}
	return nil
}

// AtLeastAsStrictAs reports whether c never admits more requests than other
// over any trailing window.
func (c Config) AtLeastAsStrictAs(other Config) bool {
	return c.MaxRequests <= other.MaxRequests && c.Window >= other.Window
}

func (c Config) String() string {
	return fmt.Sprintf("%d per %s", c.MaxRequests, c.Window)
}
