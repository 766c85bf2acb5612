// Package metrics exposes controller state as Prometheus metrics.
package metrics

import (
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/heater-controller/internal/logic"
)

var healthStates = []logic.Health{
	logic.HealthStartup,
	logic.HealthOff,
	logic.HealthOneOn,
	logic.HealthBothOn,
	logic.HealthBothBlown,
}

// Metrics holds the controller's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	temperature prometheus.Gauge
	target      prometheus.Gauge
	current     prometheus.Gauge
	relay       prometheus.Gauge
	health      *prometheus.GaugeVec
	cycles      prometheus.Counter
	alerts      *prometheus.CounterVec
	delivery    *prometheus.CounterVec
	relayErrors prometheus.Counter
	schedule    *prometheus.CounterVec
}

// New creates and registers the collectors. withRuntime adds the Go and
// process collectors.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heater_temperature_celsius",
			Help: "Measured temperature; NaN when the sensor is invalid",
		}),
		target: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heater_target_celsius",
			Help: "Active target temperature; NaN when none is latched",
		}),
		current: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heater_current_amps",
			Help: "Corrected RMS current of the last sample",
		}),
		relay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heater_relay_on",
			Help: "1 if the relay is commanded ON",
		}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "heater_health",
			Help: "1 for the current heater health state",
		}, []string{"state"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heater_cycles_total",
			Help: "Control cycles run",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heater_alerts_total",
			Help: "Failure alerts fired",
		}, []string{"category"}),
		delivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heater_alert_deliveries_total",
			Help: "Alert delivery results",
		}, []string{"result"}),
		relayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heater_relay_errors_total",
			Help: "Relay commands rejected by the hardware",
		}),
		schedule: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heater_schedule_updates_total",
			Help: "Schedule updates by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(m.temperature, m.target, m.current, m.relay, m.health,
		m.cycles, m.alerts, m.delivery, m.relayErrors, m.schedule)
	if withRuntime {
		m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	for _, cat := range logic.Categories {
		m.alerts.WithLabelValues(string(cat))
	}
	for _, h := range healthStates {
		m.health.WithLabelValues(string(h))
	}
	m.health.WithLabelValues(string(logic.HealthStartup)).Set(1)
	m.temperature.Set(math.NaN())
	m.target.Set(math.NaN())
	return m
}

// Observe records one control outcome.
func (m *Metrics) Observe(o logic.Outcome) {
	m.cycles.Inc()
	m.temperature.Set(o.Temperature)
	m.target.Set(o.Target)
	if !math.IsNaN(o.Current) {
		m.current.Set(o.Current)
	}
	if o.Relay.On() {
		m.relay.Set(1)
	} else {
		m.relay.Set(0)
	}
	for _, h := range healthStates {
		v := 0.0
		if h == o.Health {
			v = 1
		}
		m.health.WithLabelValues(string(h)).Set(v)
	}
	for _, cat := range o.AlertsFired {
		m.alerts.WithLabelValues(string(cat)).Inc()
	}
	if o.RelayErr != nil {
		m.relayErrors.Inc()
	}
}

// AlertDelivered records the result of one alert delivery.
func (m *Metrics) AlertDelivered(err error) {
	if err != nil {
		m.delivery.WithLabelValues("failed").Inc()
		return
	}
	m.delivery.WithLabelValues("sent").Inc()
}

// ScheduleUpdate records an accepted or rejected schedule update.
func (m *Metrics) ScheduleUpdate(err error) {
	if err != nil {
		m.schedule.WithLabelValues("rejected").Inc()
		return
	}
	m.schedule.WithLabelValues("accepted").Inc()
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
