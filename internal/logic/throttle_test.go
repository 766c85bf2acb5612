package logic

import (
	"testing"
	"time"
)

func TestThrottleDefaults(t *testing.T) {
	th := NewThrottle(nil)
	if got := th.Cooldown(SingleElementFailure); got != 30*time.Minute {
		t.Errorf("single cooldown = %v", got)
	}
	if got := th.Cooldown(TotalFailure); got != time.Hour {
		t.Errorf("total cooldown = %v", got)
	}

	th = NewThrottle(map[FailureCategory]time.Duration{SingleElementFailure: time.Hour})
	if got := th.Cooldown(SingleElementFailure); got != time.Hour {
		t.Errorf("override ignored: %v", got)
	}
	if got := th.Cooldown(TotalFailure); got != time.Hour {
		t.Errorf("unrelated default changed: %v", got)
	}
}

func TestThrottleFirstOccurrenceFiresOnce(t *testing.T) {
	th := NewThrottle(nil)
	now := at(8, 0)
	if !th.Evaluate(TotalFailure, now) {
		t.Fatal("first occurrence did not fire")
	}
	if th.Evaluate(TotalFailure, now) {
		t.Error("second evaluation at the same instant fired")
	}
	last, armed := th.LastNotified(TotalFailure)
	if !last.Equal(now) || armed {
		t.Errorf("LastNotified = (%v, %v)", last, armed)
	}
}

func TestThrottleCooldown(t *testing.T) {
	th := NewThrottle(nil)
	t0 := at(8, 0)
	th.Evaluate(SingleElementFailure, t0)

	for _, d := range []time.Duration{time.Second, 10 * time.Minute, 30*time.Minute - time.Nanosecond} {
		if th.Evaluate(SingleElementFailure, t0.Add(d)) {
			t.Errorf("fired %v after notification", d)
		}
	}
	if !th.Evaluate(SingleElementFailure, t0.Add(30*time.Minute)) {
		t.Fatal("did not fire at exactly the cooldown")
	}
	if th.Evaluate(SingleElementFailure, t0.Add(45*time.Minute)) {
		t.Error("cooldown did not restart from the last firing")
	}
}

func TestThrottleCategoriesIndependent(t *testing.T) {
	th := NewThrottle(nil)
	t0 := at(8, 0)
	th.Evaluate(SingleElementFailure, t0)
	if !th.Evaluate(TotalFailure, t0.Add(time.Minute)) {
		t.Error("total failure suppressed by single-element state")
	}
}

func TestThrottleResetRearms(t *testing.T) {
	th := NewThrottle(nil)
	t0 := at(8, 0)
	th.Evaluate(SingleElementFailure, t0)
	th.Evaluate(TotalFailure, t0)

	th.Reset()
	for _, cat := range Categories {
		if _, armed := th.LastNotified(cat); !armed {
			t.Errorf("%s not re-armed", cat)
		}
		if !th.Evaluate(cat, t0.Add(time.Minute)) {
			t.Errorf("%s did not fire after reset", cat)
		}
	}
}

func TestThrottleTimeAloneDoesNotRearm(t *testing.T) {
	th := NewThrottle(nil)
	t0 := at(8, 0)
	th.Evaluate(TotalFailure, t0)
	th.Evaluate(TotalFailure, t0.Add(24*time.Hour))
	if _, armed := th.LastNotified(TotalFailure); armed {
		t.Error("first-occurrence flag re-armed by elapsed time")
	}
}
