package logic

import "time"

// Default alert cool-downs.
const (
	DefaultSingleElementCooldown = 30 * time.Minute
	DefaultTotalFailureCooldown  = time.Hour
)

// alertState is the mutable alert record of one failure category.
type alertState struct {
	firstOccurrence bool
	lastNotifiedAt  time.Time
}

// Throttle decides when a failure is novel enough to notify an operator.
// Each category has its own cool-down timer. Not safe for concurrent use.
type Throttle struct {
	cooldowns map[FailureCategory]time.Duration
	state     map[FailureCategory]*alertState
}

// NewThrottle creates a throttle with the given cool-downs. Categories
// missing from cooldowns use the package defaults.
func NewThrottle(cooldowns map[FailureCategory]time.Duration) *Throttle {
	t := &Throttle{
		cooldowns: map[FailureCategory]time.Duration{
			SingleElementFailure: DefaultSingleElementCooldown,
			TotalFailure:         DefaultTotalFailureCooldown,
		},
		state: make(map[FailureCategory]*alertState, len(Categories)),
	}
	for cat, d := range cooldowns {
		t.cooldowns[cat] = d
	}
	for _, cat := range Categories {
		t.state[cat] = &alertState{firstOccurrence: true}
	}
	return t
}

// Cooldown returns the configured cool-down of cat.
func (t *Throttle) Cooldown(cat FailureCategory) time.Duration {
	return t.cooldowns[cat]
}

// Evaluate reports whether a notification for cat should fire at now.
// A firing evaluation records now as the notification time; delivery
// failures do not roll it back.
func (t *Throttle) Evaluate(cat FailureCategory, now time.Time) bool {
	st, ok := t.state[cat]
	if !ok {
		st = &alertState{firstOccurrence: true}
		t.state[cat] = st
	}
	if st.firstOccurrence {
		st.firstOccurrence = false
		st.lastNotifiedAt = now
		return true
	}
	if now.Sub(st.lastNotifiedAt) >= t.cooldowns[cat] {
		st.lastNotifiedAt = now
		return true
	}
	return false
}

// Reset marks every category as not yet notified, so the next failure is
// treated as a first occurrence. It does not notify.
func (t *Throttle) Reset() {
	for _, st := range t.state {
		st.firstOccurrence = true
	}
}

// LastNotified returns when cat last fired and whether it is armed for a
// first occurrence.
func (t *Throttle) LastNotified(cat FailureCategory) (at time.Time, armed bool) {
	st, ok := t.state[cat]
	if !ok {
		return time.Time{}, true
	}
	return st.lastNotifiedAt, st.firstOccurrence
}
