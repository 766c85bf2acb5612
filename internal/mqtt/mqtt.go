// Package mqtt publishes controller outcomes and lifecycle events, and
// receives remote schedule updates, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/sweeney/heater-controller/internal/logic"
)

// DefaultRoot is the topic prefix used when none is configured.
const DefaultRoot = "heater"

// WillPayload is published retained on Topics.Will by the broker when the
// connection drops, and replaced with OnlinePayload on connect.
const (
	WillPayload   = "offline"
	OnlinePayload = "online"
)

// Topics are the MQTT topics under one root.
type Topics struct {
	Status        string // outcome on change
	System        string // STARTUP / SHUTDOWN / HEARTBEAT
	Will          string // retained online/offline
	ScheduleState string // retained schedule copy
	Control       string // subscription filter
	Schedule      string // subscription filter
}

// NewTopics derives the topic set from root.
func NewTopics(root string) Topics {
	root = strings.TrimSuffix(root, "/")
	if root == "" {
		root = DefaultRoot
	}
	return Topics{
		Status:        root + "/status",
		System:        root + "/system",
		Will:          root + "/system/status",
		ScheduleState: root + "/schedule/state",
		Control:       root + "/control/#",
		Schedule:      root + "/schedule/#",
	}
}

// Publisher publishes controller state to MQTT.
type Publisher interface {
	// Publish sends a control outcome to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(outcome logic.Outcome) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// PublishSchedule sends the retained schedule copy.
	PublishSchedule(sched logic.Schedule) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// ScheduleHandler receives a routed schedule update.
type ScheduleHandler func(field logic.Field, value string)

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Heater status strings shown by remote dashboards.
const (
	StatusStartup = "STARTUP"
	StatusOff     = "OFF"
	StatusOn      = "ON"
	StatusError   = "ERROR"
)

// HeaterStatus condenses an outcome into a dashboard status string.
func HeaterStatus(o logic.Outcome) string {
	switch {
	case o.RelayErr != nil || o.Health.Failed():
		return StatusError
	case o.Health == logic.HealthStartup && !o.Relay.On():
		return StatusStartup
	case o.Relay.On():
		return StatusOn
	}
	return StatusOff
}

// Payload is the outcome message.
type Payload struct {
	Heater HeaterPayload `json:"heater"`
}

type HeaterPayload struct {
	Timestamp   string   `json:"timestamp"`
	Status      string   `json:"status"`
	Relay       string   `json:"relay"`
	Health      string   `json:"health"`
	Mode        string   `json:"mode"`
	Reason      string   `json:"reason"`
	Temperature any      `json:"temperature"` // °C, or "ERROR" when the sensor is invalid
	Target      *float64 `json:"target"`
	Current     *float64 `json:"current"`
	Alerts      []string `json:"alerts,omitempty"`
}

// FormatPayload creates the JSON payload for an outcome. Temperatures are
// rounded to one decimal place.
func FormatPayload(o logic.Outcome) ([]byte, error) {
	p := HeaterPayload{
		Timestamp: o.Time.UTC().Format(time.RFC3339),
		Status:    HeaterStatus(o),
		Relay:     string(o.Relay),
		Health:    string(o.Health),
		Mode:      string(o.Mode),
		Reason:    string(o.Reason),
	}
	if isFinite(o.Temperature) {
		p.Temperature = logic.Round1(o.Temperature)
	} else {
		p.Temperature = StatusError
	}
	if o.TargetSet() {
		v := logic.Round1(o.Target)
		p.Target = &v
	}
	if isFinite(o.Current) {
		v := math.Round(o.Current*100) / 100
		p.Current = &v
	}
	for _, c := range o.AlertsFired {
		p.Alerts = append(p.Alerts, string(c))
	}
	return json.Marshal(Payload{Heater: p})
}

// SchedulePayload is the retained schedule message. Unset fields are null.
type SchedulePayload struct {
	Schedule ScheduleFields `json:"schedule"`
}

type ScheduleFields struct {
	AMTemperature *float64 `json:"am_temperature"`
	PMTemperature *float64 `json:"pm_temperature"`
	AMTime        *string  `json:"am_time"`
	PMTime        *string  `json:"pm_time"`
}

// FormatSchedulePayload creates the JSON payload for a schedule.
func FormatSchedulePayload(s logic.Schedule) ([]byte, error) {
	var f ScheduleFields
	if !math.IsNaN(s.AMTemp) {
		v := logic.Round1(s.AMTemp)
		f.AMTemperature = &v
	}
	if !math.IsNaN(s.PMTemp) {
		v := logic.Round1(s.PMTemp)
		f.PMTemperature = &v
	}
	if s.AMTimeSet {
		v := s.AMTime.String()
		f.AMTime = &v
	}
	if s.PMTimeSet {
		v := s.PMTime.String()
		f.PMTime = &v
	}
	return json.Marshal(SchedulePayload{Schedule: f})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// scheduleSuffixes maps lower-case topic suffixes to schedule fields. Both the
// nested (<root>/control/am/temperature) and flat
// (<root>/schedule/amtemperature) layouts are accepted.
var scheduleSuffixes = []struct {
	suffix string
	field  logic.Field
}{
	{"/am/temperature", logic.FieldAMTemperature},
	{"/pm/temperature", logic.FieldPMTemperature},
	{"/am/time", logic.FieldAMTime},
	{"/pm/time", logic.FieldPMTime},
	{"/am/scheduledtime", logic.FieldAMTime},
	{"/pm/scheduledtime", logic.FieldPMTime},
	{"schedule/amtemperature", logic.FieldAMTemperature},
	{"schedule/pmtemperature", logic.FieldPMTemperature},
	{"schedule/amscheduledtime", logic.FieldAMTime},
	{"schedule/pmscheduledtime", logic.FieldPMTime},
	{"/" + string(logic.FieldAMTemperature), logic.FieldAMTemperature},
	{"/" + string(logic.FieldPMTemperature), logic.FieldPMTemperature},
	{"/" + string(logic.FieldAMTime), logic.FieldAMTime},
	{"/" + string(logic.FieldPMTime), logic.FieldPMTime},
}

// ParseScheduleTopic routes an inbound topic to a schedule field.
func ParseScheduleTopic(topic string) (logic.Field, bool) {
	t := strings.ToLower(strings.TrimSuffix(topic, "/"))
	for _, s := range scheduleSuffixes {
		if strings.HasSuffix(t, s.suffix) {
			return s.field, true
		}
	}
	return "", false
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
