package logic

import (
	"math"
	"time"
)

// Relay switches the heating load.
type Relay interface {
	Set(on bool) error
}

// CurrentSensor returns one raw RMS current sample. It may block for the
// bounded time needed to integrate its samples.
type CurrentSensor interface {
	RMS() (float64, error)
}

// DefaultHysteresis is the dead band above the target (°C).
const DefaultHysteresis = 0.25

// ControllerConfig configures the thermostat.
type ControllerConfig struct {
	// Hysteresis is the width of the dead band above the target in °C.
	Hysteresis float64
	Bands      Bands
	Cooldowns  map[FailureCategory]time.Duration
}

// Controller is the thermostat state machine. It runs synchronously once per
// control cycle; it never sleeps and never spawns goroutines.
type Controller struct {
	hysteresis float64
	store      *ScheduleStore
	classifier *Classifier
	throttle   *Throttle
	relay      Relay
	current    CurrentSensor
	prev       Outcome
}

// NewController wires the thermostat to its schedule and hardware.
func NewController(cfg ControllerConfig, store *ScheduleStore, relay Relay, current CurrentSensor) *Controller {
	h := cfg.Hysteresis
	if h <= 0 {
		h = DefaultHysteresis
	}
	return &Controller{
		hysteresis: h,
		store:      store,
		classifier: NewClassifier(cfg.Bands),
		throttle:   NewThrottle(cfg.Cooldowns),
		relay:      relay,
		current:    current,
		prev: Outcome{
			Relay:       RelayOff,
			Health:      HealthStartup,
			Mode:        ModeIdle,
			Temperature: math.NaN(),
			Target:      math.NaN(),
			Current:     math.NaN(),
		},
	}
}

// Step runs one control cycle and returns its outcome. It always returns an
// outcome and issues exactly one relay command.
func (c *Controller) Step(in Input) Outcome {
	c.store.Latch(in.Time)
	target, ok := c.store.Active()
	if _, _, set := c.store.ResolveTarget(ClockOf(in.Time)); !set {
		// A target latched in another period does not carry over.
		target, ok = math.NaN(), false
	}

	out := Outcome{
		Time:        in.Time,
		Temperature: in.Temperature,
		Target:      target,
		Current:     math.NaN(),
	}

	switch {
	case !ok:
		out.Relay, out.Health, out.Mode, out.Reason = RelayOff, HealthStartup, ModeIdle, ReasonNoTarget
		c.classifier.Forget()
		out.RelayErr = c.relay.Set(false)

	case !validReading(in.Temperature):
		out.Relay, out.Health, out.Mode, out.Reason = c.prev.Relay, c.prev.Health, c.prev.Mode, ReasonInvalidReading
		out.RelayErr = c.relay.Set(out.Relay.On())

	case in.Temperature > target+c.hysteresis:
		out.Relay, out.Health, out.Mode, out.Reason = RelayOff, HealthOff, ModeHeatingOff, ReasonAboveBand
		c.classifier.Forget()
		out.RelayErr = c.relay.Set(false)

	case in.Temperature < target:
		out.Relay, out.Mode, out.Reason = RelayOn, ModeHeatingOn, ReasonBelowTarget
		// The load must be energized before its current is sampled.
		out.RelayErr = c.relay.Set(true)
		out.Health = c.prev.Health
		if !c.prev.Relay.On() {
			out.Health = HealthStartup
		}
		if out.RelayErr != nil {
			break
		}
		raw, err := c.current.RMS()
		if err != nil || !validReading(raw) {
			out.Reason = ReasonCurrentError
			break
		}
		out.Current = c.classifier.Correct(raw)
		out.Health = c.classifier.Classify(raw)
		out.AlertsFired = c.evaluate(out.Health, in.Time)

	default:
		out.Relay, out.Health, out.Reason = c.prev.Relay, c.prev.Health, ReasonDeadBand
		out.Mode = ModeHeatingOff
		if out.Relay.On() {
			out.Mode = ModeHeatingOn
		}
		out.RelayErr = c.relay.Set(out.Relay.On())
	}

	c.prev = out
	return out
}

func (c *Controller) evaluate(h Health, now time.Time) []FailureCategory {
	if h == HealthBothOn {
		c.throttle.Reset()
		return nil
	}
	cat, failed := h.Category()
	if !failed {
		return nil
	}
	if c.throttle.Evaluate(cat, now) {
		return []FailureCategory{cat}
	}
	return nil
}

// Previous returns the outcome of the last cycle.
func (c *Controller) Previous() Outcome {
	return c.prev
}

// Hysteresis returns the configured dead band width.
func (c *Controller) Hysteresis() float64 {
	return c.hysteresis
}

// Throttle exposes the alert throttle for status reporting.
func (c *Controller) Throttle() *Throttle {
	return c.throttle
}
