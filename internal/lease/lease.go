package lease

import "time"

// Lease is a time-bounded ownership record for a named recurring task.
// At most one unexpired lease exists per name at any instant; the store's
// conditional write is the only way a record changes hands.
type Lease struct {
	Name       string    `json:"name"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lease is past its expiry at the given instant
func (l *Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Remaining returns how long the lease is still valid at the given instant.
// Returns 0 for an expired lease.
func (l *Lease) Remaining(now time.Time) time.Duration {
	if l.Expired(now) {
		return 0
	}
	return l.ExpiresAt.Sub(now)
}
