// Package logic contains the pure decision logic of the heater controller:
// the AM/PM schedule, the current-sense classifier, the alert throttle and
// the hysteresis thermostat that ties them together.
// This package has NO network, OS or logging dependencies.
// Time is always injectable via time.Time parameters.
package logic

import (
	"math"
	"time"
)

// Health is the classifier's belief about which heating elements draw current.
type Health string

const (
	HealthStartup   Health = "STARTUP"
	HealthOff       Health = "OFF"
	HealthOneOn     Health = "ONE_ELEMENT_ON"
	HealthBothOn    Health = "BOTH_ELEMENTS_ON"
	HealthBothBlown Health = "BOTH_ELEMENTS_BLOWN"
)

// Failed reports whether h is a partial or total element failure.
func (h Health) Failed() bool {
	return h == HealthOneOn || h == HealthBothBlown
}

// Category returns the failure category for h, if any.
func (h Health) Category() (FailureCategory, bool) {
	switch h {
	case HealthOneOn:
		return SingleElementFailure, true
	case HealthBothBlown:
		return TotalFailure, true
	}
	return "", false
}

// FailureCategory groups failures that share alert cool-down state.
type FailureCategory string

const (
	SingleElementFailure FailureCategory = "SINGLE_ELEMENT_FAILURE"
	TotalFailure         FailureCategory = "TOTAL_FAILURE"
)

// Categories lists every failure category in a stable order.
var Categories = []FailureCategory{SingleElementFailure, TotalFailure}

// RelayCommand is the binary command sent to the heater relay.
type RelayCommand string

const (
	RelayOff RelayCommand = "OFF"
	RelayOn  RelayCommand = "ON"
)

// On reports whether the command energizes the load.
func (r RelayCommand) On() bool {
	return r == RelayOn
}

// Mode is the thermostat state.
type Mode string

const (
	ModeIdle       Mode = "IDLE"
	ModeHeatingOff Mode = "HEATING_OFF"
	ModeHeatingOn  Mode = "HEATING_ON"
)

// Reason explains which branch produced an Outcome.
type Reason string

const (
	ReasonNoTarget       Reason = "no_target"
	ReasonAboveBand      Reason = "above_band"
	ReasonBelowTarget    Reason = "below_target"
	ReasonDeadBand       Reason = "dead_band"
	ReasonInvalidReading Reason = "invalid_temperature"
	ReasonCurrentError   Reason = "current_read_error"
)

// Input is one control-cycle sample.
type Input struct {
	Time        time.Time
	Temperature float64 // °C; NaN when the sensor is disconnected
}

// Outcome is the result of one control cycle. It is a value and must be
// treated as immutable once returned.
type Outcome struct {
	Time        time.Time
	Relay       RelayCommand
	Health      Health
	AlertsFired []FailureCategory
	Mode        Mode
	Reason      Reason

	Temperature float64 // as measured; NaN when invalid
	Target      float64 // active target; NaN when unset
	Current     float64 // corrected RMS current; NaN when not sampled

	// RelayErr is set when the relay rejected this cycle's command.
	RelayErr error
}

// TargetSet reports whether an active target was available this cycle.
func (o Outcome) TargetSet() bool {
	return !math.IsNaN(o.Target)
}

// SameState reports whether o and other command the relay identically and
// report the same health. Alerts and readings are ignored.
func (o Outcome) SameState(other Outcome) bool {
	return o.Relay == other.Relay && o.Health == other.Health && o.Mode == other.Mode
}

// Round1 rounds v to one decimal place for publishing.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func validReading(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
