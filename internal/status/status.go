// Package status provides a thread-safe status tracker for the heater
// controller daemon. It is read by the HTTP handlers and the MQTT
// lifecycle events.
package status

import (
	"math"
	"sync"
	"time"

	"github.com/sweeney/heater-controller/internal/logic"
)

// NetworkInfo contains network state as reported by the host helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs        int64
	Hysteresis    float64
	LatchMode     string
	Location      string
	HeartbeatSpec string
	Broker        string
	HTTPAddr      string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Outcome       logic.Outcome
	HasOutcome    bool
	Schedule      logic.Schedule
	Cycles        int
	Alerts        map[logic.FailureCategory]int
	LastAlert     map[logic.FailureCategory]time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Outcome: logic.Outcome{
				Relay:       logic.RelayOff,
				Health:      logic.HealthStartup,
				Mode:        logic.ModeIdle,
				Temperature: math.NaN(),
				Target:      math.NaN(),
				Current:     math.NaN(),
			},
			Schedule:  logic.EmptySchedule(),
			Alerts:    make(map[logic.FailureCategory]int),
			LastAlert: make(map[logic.FailureCategory]time.Time),
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the outcome of a control cycle and any alerts it fired.
func (t *Tracker) Update(o logic.Outcome) {
	t.mu.Lock()
	t.snap.Outcome = o
	t.snap.HasOutcome = true
	t.snap.Cycles++
	for _, cat := range o.AlertsFired {
		t.snap.Alerts[cat]++
		t.snap.LastAlert[cat] = o.Time
	}
	t.mu.Unlock()
}

// SetSchedule records the current schedule.
func (t *Tracker) SetSchedule(s logic.Schedule) {
	t.mu.Lock()
	t.snap.Schedule = s
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Alerts = make(map[logic.FailureCategory]int, len(t.snap.Alerts))
	for k, v := range t.snap.Alerts {
		s.Alerts[k] = v
	}
	s.LastAlert = make(map[logic.FailureCategory]time.Time, len(t.snap.LastAlert))
	for k, v := range t.snap.LastAlert {
		s.LastAlert[k] = v
	}
	s.Outcome.AlertsFired = append([]logic.FailureCategory(nil), t.snap.Outcome.AlertsFired...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

// LED colours of the heater indicator.
const (
	LEDOff    = "off"
	LEDGreen  = "green"
	LEDOrange = "orange"
	LEDBlue   = "blue"
	LEDRed    = "red"
)

// LEDColor maps heater health to the indicator colour: green idle, orange
// one element, blue both elements, red both blown.
func LEDColor(h logic.Health) string {
	switch h {
	case logic.HealthOff:
		return LEDGreen
	case logic.HealthOneOn:
		return LEDOrange
	case logic.HealthBothOn:
		return LEDBlue
	case logic.HealthBothBlown:
		return LEDRed
	}
	return LEDOff
}
