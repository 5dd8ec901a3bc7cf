package lockout

import (
	"context"
	"time"
)

const (
	// Threshold is the number of consecutive failures that locks an
	// identifier.
	Threshold = 5

	// Window is how long a lock holds after the most recent failed
	// attempt. Lock expiry is computed lazily from the last attempt
	// timestamp; no background timer exists.
	Window = 15 * time.Minute
)

// Tracker keeps per-identifier failure state for brute-force protection.
//
// An identifier is locked iff it has accumulated Threshold consecutive
// failures and the most recent attempt is still inside Window. Updates for
// one identifier must never lose an increment under concurrency; different
// identifiers are fully independent.
type Tracker interface {
	// IsLocked reports whether attempts for identifier are currently
	// blocked. Unknown identifiers are never locked. Implementations may
	// opportunistically zero a counter whose window has elapsed; callers
	// must not depend on when that happens.
	IsLocked(ctx context.Context, identifier string) (bool, error)

	// RecordFailure increments the failure counter, creating state for
	// the identifier on first failure, and stamps the attempt time.
	RecordFailure(ctx context.Context, identifier string) error

	// RecordSuccess zeroes the failure counter and stamps the attempt
	// time. It is a no-op for identifiers with no recorded state.
	RecordSuccess(ctx context.Context, identifier string) error

	// Unlock is the administrative override: it zeroes the failure
	// counter. It never creates state for an unknown identifier.
	Unlock(ctx context.Context, identifier string) error

	// DeleteOlderThan prunes state whose last attempt predates cutoff and
	// returns how many records were removed. Retention sweeps call this.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
