package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/sweeney/heater-controller/internal/gpio"
	"github.com/sweeney/heater-controller/internal/logger"
	"github.com/sweeney/heater-controller/internal/logic"
	"github.com/sweeney/heater-controller/internal/metrics"
	"github.com/sweeney/heater-controller/internal/mqtt"
	"github.com/sweeney/heater-controller/internal/notify"
	"github.com/sweeney/heater-controller/internal/recorder"
	"github.com/sweeney/heater-controller/internal/sensor"
	"github.com/sweeney/heater-controller/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfo(t *testing.T) {
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}

	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "192.168.1.100")
	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" || info.IP != "192.168.1.100" {
		t.Errorf("got %+v", info)
	}
	if info.SSID != "" {
		t.Errorf("SSID: got %q, want empty", info.SSID)
	}
}

// --- runLoop tests ---

var start = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only called from runLoop's goroutine.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type fakeQueue struct {
	alerts []notify.Alert
	full   bool
}

func (q *fakeQueue) Enqueue(a notify.Alert) bool {
	if q.full {
		return false
	}
	q.alerts = append(q.alerts, a)
	return true
}

type memRecorder struct {
	recorder.NoopRecorder
	mu       sync.Mutex
	outcomes []logic.Outcome
	alerts   []notify.Alert
}

func (m *memRecorder) RecordOutcome(_ context.Context, o logic.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *memRecorder) RecordAlert(_ context.Context, a notify.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

type harness struct {
	d       *daemon
	relay   *gpio.FakeRelay
	therm   *sensor.FakeThermometer
	current *sensor.FakeCurrentSensor
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	rec     *memRecorder
	queue   *fakeQueue
	metrics *metrics.Metrics
}

// newHarness builds a daemon with a seeded 20°C morning target.
func newHarness(t *testing.T, temps, amps []float64) *harness {
	t.Helper()
	store := logic.NewScheduleStore(logic.LatchExact)
	if err := store.Apply(logic.FieldAMTemperature, "20"); err != nil {
		t.Fatal(err)
	}
	store.Seed(start)

	h := &harness{
		relay:   gpio.NewFakeRelay(),
		therm:   &sensor.FakeThermometer{Samples: temps},
		current: &sensor.FakeCurrentSensor{Samples: amps},
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(start, status.Config{PollMs: 60000}),
		rec:     &memRecorder{},
		queue:   &fakeQueue{},
		metrics: metrics.New(false),
	}
	h.d = &daemon{
		ctl:        logic.NewController(logic.ControllerConfig{Hysteresis: 0.25, Bands: logic.DefaultBands()}, store, h.relay, h.current),
		therm:      h.therm,
		pub:        h.pub,
		mqttStatus: h.pub,
		tracker:    h.tracker,
		rec:        h.rec,
		alerts:     h.queue,
		metrics:    h.metrics,
		device:     "test-heater",
		loc:        time.UTC,
		log:        logger.Nop(),
	}
	return h
}

// drive runs runLoop, feeding one tick per 't' and one heartbeat per 'h' in
// steps, then delivers signal.
func drive(t *testing.T, h *harness, steps string, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	hb := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.d.runLoop(context.Background(), fakeClock(start, time.Minute), tick, hb, sig)
	}()

	for _, s := range steps {
		switch s {
		case 't':
			tick <- time.Time{}
		case 'h':
			hb <- time.Time{}
		}
	}
	sig <- signal

	return <-errCh
}

func TestRunLoopPublishesOnChangeOnly(t *testing.T) {
	h := newHarness(t, []float64{19, 19, 20.1, 21}, []float64{4.0})

	if err := drive(t, h, "tttt", syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.pub.Outcomes) != 2 {
		t.Fatalf("expected 2 published outcomes, got %d", len(h.pub.Outcomes))
	}
	if o := h.pub.Outcomes[0]; o.Relay != logic.RelayOn || o.Health != logic.HealthBothOn {
		t.Errorf("first outcome: got %s/%s, want ON/BOTH_ELEMENTS_ON", o.Relay, o.Health)
	}
	if o := h.pub.Outcomes[1]; o.Relay != logic.RelayOff || o.Mode != logic.ModeHeatingOff {
		t.Errorf("second outcome: got %s/%s, want OFF/HEATING_OFF", o.Relay, o.Mode)
	}

	want := []bool{true, true, true, false}
	if fmt.Sprint(h.relay.Commands) != fmt.Sprint(want) {
		t.Errorf("relay commands: got %v, want %v", h.relay.Commands, want)
	}
	if snap := h.tracker.Snapshot(); snap.Cycles != 4 {
		t.Errorf("tracker cycles: got %d, want 4", snap.Cycles)
	}
	if len(h.rec.outcomes) != 4 {
		t.Errorf("recorder saw %d outcomes, want 4", len(h.rec.outcomes))
	}
	if events := h.pub.Events(); len(events) != 1 || events[0] != "SHUTDOWN" {
		t.Errorf("system events: got %v, want [SHUTDOWN]", events)
	}
}

func TestRunLoopSingleElementAlert(t *testing.T) {
	h := newHarness(t, []float64{18}, []float64{2.0})

	if err := drive(t, h, "ttt", syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.queue.alerts) != 1 {
		t.Fatalf("expected 1 queued alert within the cool-down, got %d", len(h.queue.alerts))
	}
	a := h.queue.alerts[0]
	if a.Category != logic.SingleElementFailure {
		t.Errorf("category: got %s", a.Category)
	}
	if !strings.Contains(a.Subject, "test-heater") {
		t.Errorf("subject %q missing device name", a.Subject)
	}
	if len(h.rec.alerts) != 1 || h.rec.alerts[0].ID != a.ID {
		t.Errorf("recorded alerts: %+v", h.rec.alerts)
	}

	if len(h.pub.Outcomes) != 1 {
		t.Fatalf("expected 1 published outcome, got %d", len(h.pub.Outcomes))
	}
	if !strings.Contains(string(h.pub.Payloads[0]), `"status":"ERROR"`) {
		t.Errorf("payload: %s", h.pub.Payloads[0])
	}
	if snap := h.tracker.Snapshot(); snap.Alerts[logic.SingleElementFailure] != 1 {
		t.Errorf("tracker alerts: %v", snap.Alerts)
	}
}

func TestRunLoopFullQueueDoesNotBlock(t *testing.T) {
	h := newHarness(t, []float64{18}, []float64{0.1})
	h.queue.full = true

	if err := drive(t, h, "tt", syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(h.rec.alerts) != 1 {
		t.Errorf("alert not recorded when the queue is full: %d", len(h.rec.alerts))
	}
	if len(h.relay.Commands) != 2 {
		t.Errorf("loop stalled: %d relay commands", len(h.relay.Commands))
	}
}

func TestRunLoopThermometerError(t *testing.T) {
	h := newHarness(t, nil, []float64{4.0})
	h.therm.ReadError = errors.New("w1 bus timeout")

	if err := drive(t, h, "tt", syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.pub.Outcomes) != 1 {
		t.Fatalf("expected 1 published outcome, got %d", len(h.pub.Outcomes))
	}
	o := h.pub.Outcomes[0]
	if o.Reason != logic.ReasonInvalidReading || !math.IsNaN(o.Temperature) {
		t.Errorf("outcome: reason %s temperature %v", o.Reason, o.Temperature)
	}
	if !strings.Contains(string(h.pub.Payloads[0]), `"temperature":"ERROR"`) {
		t.Errorf("payload: %s", h.pub.Payloads[0])
	}
	if h.current.Reads != 0 {
		t.Error("current sampled without a temperature")
	}
}

func TestRunLoopRelayError(t *testing.T) {
	h := newHarness(t, []float64{18}, []float64{4.0})
	h.relay.SetError = errors.New("line busy")

	if err := drive(t, h, "tt", syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(h.relay.Commands) != 2 {
		t.Errorf("relay commands: got %d, want one per cycle", len(h.relay.Commands))
	}
	if got := h.pub.Outcomes[0]; got.RelayErr == nil {
		t.Error("published outcome missing relay error")
	}
}

func TestRunLoopPublishErrorRetriesNextCycle(t *testing.T) {
	h := newHarness(t, []float64{18}, []float64{4.0})
	h.pub.PublishError = errors.New("broker unavailable")

	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.d.runLoop(context.Background(), fakeClock(start, time.Minute), tick, nil, sig)
	}()

	tick <- time.Time{}
	tick <- time.Time{} // blocks until the first cycle is done
	h.pub.Reset()
	tick <- time.Time{}
	tick <- time.Time{}
	sig <- syscall.SIGTERM
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}

	if len(h.pub.Outcomes) != 1 {
		t.Errorf("expected the unchanged state to be published once after recovery, got %d", len(h.pub.Outcomes))
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.42")

	h := newHarness(t, []float64{19}, []float64{4.0})
	h.pub.Connected = true

	if err := drive(t, h, "tth", syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	events := h.pub.Events()
	if len(events) != 2 || events[0] != "HEARTBEAT" || events[1] != "SHUTDOWN" {
		t.Fatalf("system events: got %v, want [HEARTBEAT SHUTDOWN]", events)
	}
	payload := string(h.pub.SystemPayloads[0])
	for _, want := range []string{`"event":"HEARTBEAT"`, `"cycles":2`, `"connected":true`, `"ip":"192.168.1.42"`} {
		if !strings.Contains(payload, want) {
			t.Errorf("heartbeat payload missing %s: %s", want, payload)
		}
	}
	if h.pub.SystemEvents[0].Retained {
		t.Error("HEARTBEAT should not be retained")
	}
}

func TestRunLoopShutdownSignals(t *testing.T) {
	for _, tt := range []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
	} {
		t.Run(tt.want, func(t *testing.T) {
			h := newHarness(t, []float64{19}, []float64{4.0})
			if err := drive(t, h, "t", tt.sig); err != nil {
				t.Fatalf("runLoop returned error: %v", err)
			}

			if len(h.pub.SystemEvents) != 1 {
				t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
			}
			se := h.pub.SystemEvents[0]
			if se.Event != "SHUTDOWN" {
				t.Errorf("expected SHUTDOWN, got %q", se.Event)
			}
			if se.Reason != tt.want {
				t.Errorf("expected reason %s, got %q", tt.want, se.Reason)
			}
			if !se.Retained {
				t.Error("expected Retained=true for SHUTDOWN")
			}
		})
	}
}

func TestRunLoopContextCancelled(t *testing.T) {
	h := newHarness(t, []float64{19}, []float64{4.0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.d.runLoop(ctx, fakeClock(start, time.Minute), nil, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if events := h.pub.Events(); len(events) != 1 || h.pub.SystemEvents[0].Reason != "CANCELLED" {
		t.Errorf("system events: %+v", h.pub.SystemEvents)
	}
}

func TestCycleUsesLocalTime(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	h := newHarness(t, []float64{19}, []float64{4.0})
	h.d.loc = loc

	h.d.cycle(context.Background(), start)
	if got := h.d.ctl.Previous().Time; got.Location() != loc || got.Hour() != 13 {
		t.Errorf("cycle time: got %v, want 13:00 in %v", got, loc)
	}
}

// --- commands ---

func TestPrintState(t *testing.T) {
	cmd := newPrintStateCmd(viper.New())
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := printState(cmd, &sensor.FakeThermometer{Samples: []float64{21.43}}, &sensor.FakeCurrentSensor{Samples: []float64{3.1}})
	if err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "Temperature: 21.4 °C, Current: 3.10 A\n" {
		t.Errorf("output: %q", got)
	}

	err = printState(cmd, &sensor.FakeThermometer{ReadError: sensor.ErrInvalidReading}, &sensor.FakeCurrentSensor{})
	if !errors.Is(err, sensor.ErrInvalidReading) {
		t.Errorf("err = %v", err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HEATERD_CONTROL_LOCATION", "UTC")
	root := newRootCmd(viper.New())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("HEATERD_ALERTS_MAIL_PASSWORD", "hunter2")
	t.Setenv("HEATERD_MQTT_ROOT", "boiler")

	out, err := execute(t, "config")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"latch_mode: exact", "root: boiler", "poll: 10s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hunter2") {
		t.Error("password printed in clear")
	}
}

func TestConfigCommandInvalid(t *testing.T) {
	t.Setenv("HEATERD_CONTROL_LATCH_MODE", "sometimes")
	if _, err := execute(t, "config"); err == nil {
		t.Error("expected validation error")
	}
}

func TestTokenCommand(t *testing.T) {
	if _, err := execute(t, "token"); err == nil {
		t.Error("expected error without a token secret")
	}

	t.Setenv("HEATERD_HTTP_TOKEN_SECRET", "s3cret")
	out, err := execute(t, "token", "--ttl", "1h")
	if err != nil {
		t.Fatal(err)
	}
	if parts := strings.Split(strings.TrimSpace(out), "."); len(parts) != 3 {
		t.Errorf("not a JWT: %q", out)
	}
}
