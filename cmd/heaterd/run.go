package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/heater-controller/internal/config"
	"github.com/sweeney/heater-controller/internal/gpio"
	"github.com/sweeney/heater-controller/internal/logger"
	"github.com/sweeney/heater-controller/internal/logic"
	"github.com/sweeney/heater-controller/internal/metrics"
	"github.com/sweeney/heater-controller/internal/mqtt"
	"github.com/sweeney/heater-controller/internal/notify"
	"github.com/sweeney/heater-controller/internal/persist"
	"github.com/sweeney/heater-controller/internal/recorder"
	"github.com/sweeney/heater-controller/internal/sensor"
	"github.com/sweeney/heater-controller/internal/status"
	"github.com/sweeney/heater-controller/internal/web"
)

const shutdownTimeout = 5 * time.Second

// run wires the hardware, sinks and servers and blocks until a signal
// arrives or a component fails.
func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	loc, err := time.LoadLocation(cfg.Control.Location)
	if err != nil {
		return fmt.Errorf("load location: %w", err)
	}

	relay, err := gpio.NewRealRelay(cfg.GPIO.Chip, cfg.GPIO.RelayPin, cfg.GPIO.ActiveLow)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer func() {
		if err := relay.Close(); err != nil {
			log.Errorw("release relay", "err", err)
		}
	}()

	therm, err := sensor.NewW1Thermometer(cfg.Sensors.Thermometer)
	if err != nil {
		return fmt.Errorf("init thermometer: %w", err)
	}
	current, err := sensor.NewADCCurrentSensor(cfg.Sensors.ADC, cfg.Sensors.ADCSamples, cfg.Sensors.ADCScale)
	if err != nil {
		return fmt.Errorf("init current sensor: %w", err)
	}

	rec, err := openRecorder(cfg, log)
	if err != nil {
		return err
	}
	defer rec.Close()

	m := metrics.New(true)

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:        cfg.Control.Poll.Milliseconds(),
		Hysteresis:    cfg.Control.Hysteresis,
		LatchMode:     cfg.Control.LatchMode,
		Location:      cfg.Control.Location,
		HeartbeatSpec: cfg.Heartbeat.Spec,
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP.Addr,
	})
	if info := readNetworkInfo(); info != nil {
		tracker.SetNetwork(info)
	}

	store, err := loadSchedule(cfg, loc, log)
	if err != nil {
		return err
	}
	updates := &scheduleUpdater{store: store, metrics: m, log: log.Named("schedule")}

	var pub mqtt.Publisher = mqtt.NopPublisher{}
	var conn mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		rp := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Root:     cfg.MQTT.Root,
			OnSchedule: func(f logic.Field, value string) {
				_ = updates.apply("mqtt", f, value)
			},
			Log: log.Named("mqtt"),
		})
		pub, conn = rp, rp
	} else {
		log.Warnw("mqtt disabled")
	}
	defer pub.Close()

	store.OnChange(func(f logic.Field, s logic.Schedule) {
		tracker.SetSchedule(s)
		if err := persist.Save(cfg.Schedule.StateFile, s); err != nil {
			log.Errorw("save schedule", "path", cfg.Schedule.StateFile, "err", err)
		}
		if err := pub.PublishSchedule(s); err != nil {
			log.Warnw("publish schedule", "err", err)
		}
		if err := rec.RecordScheduleChange(context.Background(), f, s); err != nil {
			log.Warnw("record schedule change", "err", err)
		}
	})
	sched := store.Schedule()
	tracker.SetSchedule(sched)
	if err := pub.PublishSchedule(sched); err != nil {
		log.Warnw("publish schedule", "err", err)
	}

	disp := notify.NewDispatcher(newNotifier(cfg, log), cfg.Alerts.QueueSize, log.Named("notify"))
	disp.OnResult = func(_ notify.Alert, err error) { m.AlertDelivered(err) }

	ctl := logic.NewController(cfg.Controller(), store, relay, current)

	startup := mqtt.SystemEvent{
		Timestamp:  time.Now(),
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "STARTUP", ""),
	}
	if err := pub.PublishSystem(startup); err != nil {
		log.Warnw("failed to publish startup event", "err", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	var srv *web.Server
	if cfg.HTTP.Addr != "" {
		srv = web.New(web.Options{
			Addr:        cfg.HTTP.Addr,
			Tracker:     tracker,
			Schedule:    updates,
			Recorder:    rec,
			Metrics:     m.Handler(),
			TokenSecret: cfg.HTTP.TokenSecret,
			Log:         log.Named("http"),
		})
		g.Go(srv.ListenAndServe)
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
		log.Infow("http status server listening", "addr", cfg.HTTP.Addr)
	}

	g.Go(func() error { return disp.Run(ctx) })

	hb := make(chan time.Time, 1)
	c := cron.New(cron.WithLocation(loc))
	if cfg.Heartbeat.Spec != "" {
		if _, err := c.AddFunc(cfg.Heartbeat.Spec, func() {
			select {
			case hb <- time.Now():
			default:
			}
		}); err != nil {
			return fmt.Errorf("heartbeat spec %q: %w", cfg.Heartbeat.Spec, err)
		}
	}
	c.Start()
	defer c.Stop()

	d := &daemon{
		ctl:        ctl,
		therm:      therm,
		pub:        pub,
		mqttStatus: conn,
		tracker:    tracker,
		rec:        rec,
		alerts:     disp,
		metrics:    m,
		device:     cfg.Alerts.Device,
		loc:        loc,
		log:        log.Named("loop"),
	}
	if srv != nil {
		d.live = srv
	}

	log.Infow("started",
		"poll", cfg.Control.Poll,
		"hysteresis", cfg.Control.Hysteresis,
		"latch", cfg.Control.LatchMode,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.Heartbeat.Spec,
	)

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Control.Poll)
		defer ticker.Stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		err := d.runLoop(ctx, time.Now, ticker.C, hb, sigCh)
		if err == nil {
			// Stop the other group members after a clean signal shutdown.
			err = errShutdown
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

var errShutdown = errors.New("shutdown requested")

func openRecorder(cfg *config.Config, log *logger.Logger) (recorder.Recorder, error) {
	if cfg.Database.Path == "" {
		return recorder.NewNoopRecorder(), nil
	}
	rec, err := recorder.Open(cfg.Database.Path, log.Named("recorder"))
	if err != nil {
		return nil, fmt.Errorf("init recorder: %w", err)
	}
	return rec, nil
}

// loadSchedule restores the persisted schedule, falling back to the
// configured initial values, and seeds the active target.
func loadSchedule(cfg *config.Config, loc *time.Location, log *logger.Logger) (*logic.ScheduleStore, error) {
	store := logic.NewScheduleStore(logic.LatchMode(cfg.Control.LatchMode))

	saved, err := persist.Load(cfg.Schedule.StateFile)
	if err != nil {
		log.Warnw("ignoring unreadable schedule state", "path", cfg.Schedule.StateFile, "err", err)
		saved = logic.EmptySchedule()
	}
	if err := store.Restore(saved); err != nil {
		return nil, fmt.Errorf("restore schedule: %w", err)
	}

	current := store.Schedule()
	initial := cfg.InitialSchedule()
	for _, f := range logic.Fields {
		v, ok := initial[f]
		if !ok || isSet(current, f) {
			continue
		}
		if err := store.Apply(f, v); err != nil {
			return nil, fmt.Errorf("schedule.%s: %w", f, err)
		}
	}

	store.Seed(time.Now().In(loc))
	if target, ok := store.Active(); ok {
		log.Infow("seeded active target", "target", target)
	} else {
		log.Infow("no active target until the next scheduled period")
	}
	return store, nil
}

func isSet(s logic.Schedule, f logic.Field) bool {
	switch f {
	case logic.FieldAMTemperature:
		return !math.IsNaN(s.AMTemp)
	case logic.FieldPMTemperature:
		return !math.IsNaN(s.PMTemp)
	case logic.FieldAMTime:
		return s.AMTimeSet
	case logic.FieldPMTime:
		return s.PMTimeSet
	}
	return false
}

func newNotifier(cfg *config.Config, log *logger.Logger) notify.Notifier {
	if cfg.Alerts.Mail.Host == "" {
		log.Infow("mail not configured, alerts are logged only")
		return notify.LogNotifier{Log: log.Named("alert")}
	}
	mailer, err := notify.NewMailer(notify.MailConfig{
		Host:     cfg.Alerts.Mail.Host,
		Port:     cfg.Alerts.Mail.Port,
		Username: cfg.Alerts.Mail.Username,
		Password: cfg.Alerts.Mail.Password,
		From:     cfg.Alerts.Mail.From,
		To:       cfg.Alerts.Mail.To,
	}, notify.Retry{Attempts: cfg.Alerts.Mail.Attempts, Backoff: cfg.Alerts.Mail.Backoff}, log.Named("mail"))
	if err != nil {
		log.Errorw("mail disabled", "err", err)
		return notify.LogNotifier{Log: log.Named("alert")}
	}
	return mailer
}

// scheduleUpdater routes remote updates into the store and counts them.
type scheduleUpdater struct {
	store   *logic.ScheduleStore
	metrics *metrics.Metrics
	log     *logger.Logger
}

func (u *scheduleUpdater) apply(source string, f logic.Field, value string) error {
	err := u.store.Apply(f, value)
	u.metrics.ScheduleUpdate(err)
	if err != nil {
		u.log.Warnw("schedule update rejected", "source", source, "field", f, "value", value, "err", err)
		return err
	}
	u.log.Infow("schedule updated", "source", source, "field", f, "value", value)
	return nil
}

// Apply implements web.ScheduleUpdater.
func (u *scheduleUpdater) Apply(f logic.Field, value string) error {
	return u.apply("http", f, value)
}

func (u *scheduleUpdater) Schedule() logic.Schedule {
	return u.store.Schedule()
}
