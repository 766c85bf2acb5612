package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/heater-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Heater        HeaterJSON   `json:"heater"`
	Schedule      ScheduleJSON `json:"schedule"`
	Cycles        int          `json:"cycles"`
	Alerts        []AlertJSON  `json:"alerts"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// HeaterJSON is the last control outcome.
type HeaterJSON struct {
	Relay       string   `json:"relay"`
	Health      string   `json:"health"`
	Mode        string   `json:"mode"`
	Reason      string   `json:"reason,omitempty"`
	LED         string   `json:"led"`
	Temperature *float64 `json:"temperature"`
	Target      *float64 `json:"target"`
	Current     *float64 `json:"current"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

// ScheduleJSON is the stored schedule; unset fields are null.
type ScheduleJSON struct {
	AMTemperature *float64 `json:"am_temperature"`
	PMTemperature *float64 `json:"pm_temperature"`
	AMTime        *string  `json:"am_time"`
	PMTime        *string  `json:"pm_time"`
}

// AlertJSON summarises one failure category.
type AlertJSON struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
	Last     string `json:"last,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs     int64   `json:"poll_ms"`
	Hysteresis float64 `json:"hysteresis"`
	LatchMode  string  `json:"latch_mode"`
	Location   string  `json:"location"`
	Heartbeat  string  `json:"heartbeat"`
	Broker     string  `json:"broker"`
	HTTPAddr   string  `json:"http_addr"`
}

func rounded(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := logic.Round1(v)
	return &r
}

func buildSchedule(s logic.Schedule) ScheduleJSON {
	var out ScheduleJSON
	out.AMTemperature = rounded(s.AMTemp)
	out.PMTemperature = rounded(s.PMTemp)
	if s.AMTimeSet {
		v := s.AMTime.String()
		out.AMTime = &v
	}
	if s.PMTimeSet {
		v := s.PMTime.String()
		out.PMTime = &v
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	o := snap.Outcome
	heater := HeaterJSON{
		Relay:       string(o.Relay),
		Health:      string(o.Health),
		Mode:        string(o.Mode),
		Reason:      string(o.Reason),
		LED:         LEDColor(o.Health),
		Temperature: rounded(o.Temperature),
		Target:      rounded(o.Target),
	}
	if !math.IsNaN(o.Current) {
		c := math.Round(o.Current*100) / 100
		heater.Current = &c
	}
	if snap.HasOutcome {
		heater.UpdatedAt = o.Time.UTC().Format(time.RFC3339)
	}

	alerts := make([]AlertJSON, 0, len(logic.Categories))
	for _, cat := range logic.Categories {
		a := AlertJSON{Category: string(cat), Count: snap.Alerts[cat]}
		if last, ok := snap.LastAlert[cat]; ok {
			a.Last = last.UTC().Format(time.RFC3339)
		}
		alerts = append(alerts, a)
	}

	return StatusInner{
		Heater:        heater,
		Schedule:      buildSchedule(snap.Schedule),
		Cycles:        snap.Cycles,
		Alerts:        alerts,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:     snap.Config.PollMs,
			Hysteresis: snap.Config.Hysteresis,
			LatchMode:  snap.Config.LatchMode,
			Location:   snap.Config.Location,
			Heartbeat:  snap.Config.HeartbeatSpec,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
