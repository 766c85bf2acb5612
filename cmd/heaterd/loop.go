package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/heater-controller/internal/logger"
	"github.com/sweeney/heater-controller/internal/logic"
	"github.com/sweeney/heater-controller/internal/metrics"
	"github.com/sweeney/heater-controller/internal/mqtt"
	"github.com/sweeney/heater-controller/internal/notify"
	"github.com/sweeney/heater-controller/internal/recorder"
	"github.com/sweeney/heater-controller/internal/sensor"
	"github.com/sweeney/heater-controller/internal/status"
)

// alertQueue accepts alerts without blocking.
type alertQueue interface {
	Enqueue(a notify.Alert) bool
}

// broadcaster pushes outcomes to live clients.
type broadcaster interface {
	Broadcast(o logic.Outcome)
}

// daemon owns one control loop and the sinks each cycle reports to.
type daemon struct {
	ctl        *logic.Controller
	therm      sensor.Thermometer
	pub        mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // optional
	tracker    *status.Tracker
	rec        recorder.Recorder
	alerts     alertQueue
	metrics    *metrics.Metrics
	live       broadcaster // optional
	device     string
	loc        *time.Location
	log        *logger.Logger

	published bool
}

// runLoop runs one control cycle per tick and publishes a heartbeat per
// value on hb. It publishes SHUTDOWN and returns on a signal, or returns
// when ctx is cancelled.
func (d *daemon) runLoop(ctx context.Context, now func() time.Time, tick <-chan time.Time, hb <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			d.log.Infow("shutting down", "signal", s)
			d.shutdown(now(), signalName(s))
			return nil

		case <-ctx.Done():
			d.log.Infow("shutting down", "reason", ctx.Err())
			d.shutdown(now(), "CANCELLED")
			return ctx.Err()

		case <-tick:
			d.cycle(ctx, now())

		case <-hb:
			d.heartbeat(now())
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// cycle reads the thermometer, steps the controller and reports the outcome.
func (d *daemon) cycle(ctx context.Context, t time.Time) {
	if d.loc != nil {
		t = t.In(d.loc)
	}

	temp, err := sensor.ReadTemperature(d.therm)
	if err != nil {
		d.log.Warnw("temperature read failed", "err", err)
	}

	prev := d.ctl.Previous()
	o := d.ctl.Step(logic.Input{Time: t, Temperature: temp})

	if o.RelayErr != nil {
		d.log.Errorw("relay command failed", "relay", o.Relay, "err", o.RelayErr)
	}

	d.refreshConnection()
	d.tracker.Update(o)
	d.metrics.Observe(o)

	changed := !d.published || !o.SameState(prev) || len(o.AlertsFired) > 0
	if changed {
		d.log.Infow("heater",
			"relay", o.Relay,
			"health", o.Health,
			"mode", o.Mode,
			"reason", o.Reason,
			"temperature", o.Temperature,
			"target", o.Target,
			"current", o.Current,
		)
		if err := d.pub.Publish(o); err != nil {
			d.log.Warnw("publish outcome failed", "err", err)
		} else {
			d.published = true
		}
		if d.live != nil {
			d.live.Broadcast(o)
		}
	} else {
		d.log.Debugw("cycle", "temperature", o.Temperature, "reason", o.Reason)
	}

	if err := d.rec.RecordOutcome(ctx, o); err != nil {
		d.log.Warnw("record outcome failed", "err", err)
	}

	for _, cat := range o.AlertsFired {
		a := notify.Format(cat, o, d.device)
		d.log.Warnw("heater failure", "category", cat, "alert", a.ID)
		if err := d.rec.RecordAlert(ctx, a); err != nil {
			d.log.Warnw("record alert failed", "err", err)
		}
		d.alerts.Enqueue(a)
	}
}

func (d *daemon) heartbeat(t time.Time) {
	d.refreshConnection()
	if info := readNetworkInfo(); info != nil {
		d.tracker.SetNetwork(info)
	}
	snap := d.tracker.Snapshot()
	d.log.Infow("heartbeat", "uptime", snap.Uptime().Truncate(time.Second), "cycles", snap.Cycles)

	event := mqtt.SystemEvent{
		Timestamp:  t,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := d.pub.PublishSystem(event); err != nil {
		d.log.Warnw("heartbeat publish failed", "err", err)
	}
}

func (d *daemon) shutdown(t time.Time, reason string) {
	d.refreshConnection()
	event := mqtt.SystemEvent{
		Timestamp:  t,
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(d.tracker.Snapshot(), "SHUTDOWN", reason),
	}
	if err := d.pub.PublishSystem(event); err != nil {
		d.log.Warnw("failed to publish shutdown event", "err", err)
	} else {
		d.log.Infow("published shutdown event")
	}
}

func (d *daemon) refreshConnection() {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}
