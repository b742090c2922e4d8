// Package cooldown persists per-symbol alert cooldowns so a restart never
// double-fires a signal that was already alerted.
//
// A cooldown map is loaded once per scan cycle and written back on every
// signal. Entries expire by read-time check only; there is no active
// eviction.
package cooldown

import (
	"context"
	"time"
)

// Store is a durable symbol → expiry mapping.
//
// Load is fail-open: missing or corrupt backing storage yields an empty map
// (logged as a warning), never an error: losing cooldown state risks a
// duplicate alert, not a missed one. Save performs a full overwrite that is
// durable before it returns.
type Store interface {
	Load(ctx context.Context) map[string]time.Time
	Save(ctx context.Context, cooldowns map[string]time.Time) error
	Close() error
}

// IsCoolingDown reports whether symbol has an unexpired cooldown entry.
func IsCoolingDown(cooldowns map[string]time.Time, symbol string, now time.Time) bool {
	expiry, ok := cooldowns[symbol]
	return ok && expiry.After(now)
}

// PlaceOnCooldown sets symbol's expiry to now+duration, overwriting any
// prior entry. Cooldowns do not stack or extend: the latest signal wins.
func PlaceOnCooldown(cooldowns map[string]time.Time, symbol string, now time.Time, duration time.Duration) {
	cooldowns[symbol] = now.Add(duration)
}
