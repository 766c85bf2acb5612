// Package config loads the daemon configuration from file, environment and
// flags through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sweeney/heater-controller/internal/logic"
)

// EnvPrefix is prepended to environment overrides, e.g. HEATERD_MQTT_BROKER.
const EnvPrefix = "HEATERD"

// Config is the complete daemon configuration.
type Config struct {
	Control    Control    `mapstructure:"control" yaml:"control"`
	Classifier Classifier `mapstructure:"classifier" yaml:"classifier"`
	Alerts     Alerts     `mapstructure:"alerts" yaml:"alerts"`
	MQTT       MQTT       `mapstructure:"mqtt" yaml:"mqtt"`
	GPIO       GPIO       `mapstructure:"gpio" yaml:"gpio"`
	Sensors    Sensors    `mapstructure:"sensors" yaml:"sensors"`
	HTTP       HTTP       `mapstructure:"http" yaml:"http"`
	Database   Database   `mapstructure:"database" yaml:"database"`
	Schedule   Schedule   `mapstructure:"schedule" yaml:"schedule"`
	Heartbeat  Heartbeat  `mapstructure:"heartbeat" yaml:"heartbeat"`
	Log        Log        `mapstructure:"log" yaml:"log"`
}

type Control struct {
	Poll       time.Duration `mapstructure:"poll" yaml:"poll"`
	Hysteresis float64       `mapstructure:"hysteresis" yaml:"hysteresis"`
	LatchMode  string        `mapstructure:"latch_mode" yaml:"latch_mode"`
	Location   string        `mapstructure:"location" yaml:"location"`
}

// Classifier holds the current band edges in amps.
type Classifier struct {
	BaselineOffset    float64 `mapstructure:"baseline_offset" yaml:"baseline_offset"`
	NoiseFloor        float64 `mapstructure:"noise_floor" yaml:"noise_floor"`
	BlownBelow        float64 `mapstructure:"blown_below" yaml:"blown_below"`
	OneElementMax     float64 `mapstructure:"one_element_max" yaml:"one_element_max"`
	BothElementsAbove float64 `mapstructure:"both_elements_above" yaml:"both_elements_above"`
	Deadband          float64 `mapstructure:"deadband" yaml:"deadband"`
}

type Alerts struct {
	SingleElementCooldown time.Duration `mapstructure:"single_element_cooldown" yaml:"single_element_cooldown"`
	TotalFailureCooldown  time.Duration `mapstructure:"total_failure_cooldown" yaml:"total_failure_cooldown"`
	Device                string        `mapstructure:"device" yaml:"device"`
	QueueSize             int           `mapstructure:"queue_size" yaml:"queue_size"`
	Mail                  Mail          `mapstructure:"mail" yaml:"mail"`
}

// Mail configures SMTP delivery. An empty Host disables mail and alerts are
// only logged.
type Mail struct {
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	Username string        `mapstructure:"username" yaml:"username"`
	Password string        `mapstructure:"password" yaml:"password"`
	From     string        `mapstructure:"from" yaml:"from"`
	To       []string      `mapstructure:"to" yaml:"to"`
	Attempts int           `mapstructure:"attempts" yaml:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff" yaml:"backoff"`
}

// MQTT configures the broker connection. An empty Broker disables MQTT.
type MQTT struct {
	Broker   string `mapstructure:"broker" yaml:"broker"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Root     string `mapstructure:"root" yaml:"root"`
}

type GPIO struct {
	Chip      string `mapstructure:"chip" yaml:"chip"`
	RelayPin  int    `mapstructure:"relay_pin" yaml:"relay_pin"`
	ActiveLow bool   `mapstructure:"active_low" yaml:"active_low"`
}

type Sensors struct {
	// Thermometer is a w1_slave path or glob.
	Thermometer string `mapstructure:"thermometer" yaml:"thermometer"`
	// ADC is the IIO raw channel file of the current transformer.
	ADC        string  `mapstructure:"adc" yaml:"adc"`
	ADCSamples int     `mapstructure:"adc_samples" yaml:"adc_samples"`
	ADCScale   float64 `mapstructure:"adc_scale" yaml:"adc_scale"`
}

// HTTP configures the status server. An empty Addr disables it.
type HTTP struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	TokenSecret string `mapstructure:"token_secret" yaml:"token_secret"`
}

// Database configures the history recorder. An empty Path disables it.
type Database struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Schedule holds the state file and the values used when it does not exist.
type Schedule struct {
	StateFile     string `mapstructure:"state_file" yaml:"state_file"`
	AMTemperature string `mapstructure:"am_temperature" yaml:"am_temperature"`
	PMTemperature string `mapstructure:"pm_temperature" yaml:"pm_temperature"`
	AMTime        string `mapstructure:"am_time" yaml:"am_time"`
	PMTime        string `mapstructure:"pm_time" yaml:"pm_time"`
}

type Heartbeat struct {
	// Spec is a robfig/cron schedule; empty disables heartbeats.
	Spec string `mapstructure:"spec" yaml:"spec"`
}

type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Defaults lists every key with its default value.
var Defaults = map[string]any{
	"control.poll":       10 * time.Second,
	"control.hysteresis": logic.DefaultHysteresis,
	"control.latch_mode": string(logic.LatchExact),
	"control.location":   "Europe/London",

	"classifier.baseline_offset":     logic.DefaultBands().BaselineOffset,
	"classifier.noise_floor":         logic.DefaultBands().NoiseFloor,
	"classifier.blown_below":         logic.DefaultBands().BlownBelow,
	"classifier.one_element_max":     logic.DefaultBands().OneElementMax,
	"classifier.both_elements_above": logic.DefaultBands().BothElementsAbove,
	"classifier.deadband":            logic.DefaultBands().Deadband,

	"alerts.single_element_cooldown": logic.DefaultSingleElementCooldown,
	"alerts.total_failure_cooldown":  logic.DefaultTotalFailureCooldown,
	"alerts.device":                  "heater",
	"alerts.queue_size":              16,
	"alerts.mail.host":               "",
	"alerts.mail.port":               587,
	"alerts.mail.username":           "",
	"alerts.mail.password":           "",
	"alerts.mail.from":               "",
	"alerts.mail.to":                 []string{},
	"alerts.mail.attempts":           3,
	"alerts.mail.backoff":            10 * time.Second,

	"mqtt.broker":    "tcp://192.168.1.200:1883",
	"mqtt.client_id": "heater-controller",
	"mqtt.root":      "heater",

	"gpio.chip":       "gpiochip0",
	"gpio.relay_pin":  17,
	"gpio.active_low": false,

	"sensors.thermometer": "/sys/bus/w1/devices/28-*/w1_slave",
	"sensors.adc":         "/sys/bus/iio/devices/iio:device0/in_voltage0_raw",
	"sensors.adc_samples": 400,
	"sensors.adc_scale":   0.0148,

	"http.addr":         ":80",
	"http.token_secret": "",

	"database.path": "/var/lib/heaterd/history.db",

	"schedule.state_file":     "/var/lib/heaterd/schedule.yaml",
	"schedule.am_temperature": "",
	"schedule.pm_temperature": "",
	"schedule.am_time":        "",
	"schedule.pm_time":        "",

	"heartbeat.spec": "@every 15m",

	"log.level": "info",
}

// SetDefaults registers Defaults and the environment binding on v.
func SetDefaults(v *viper.Viper) {
	for k, val := range Defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Read loads the configuration file into v. With an empty path the standard
// locations are searched and a missing file is not an error.
func Read(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("/etc/heaterd/")
		v.AddConfigPath("$HOME/.heaterd")
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the control loop depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Control.Poll <= 0 {
		errs = append(errs, errors.New("control.poll must be > 0"))
	}
	if c.Control.Hysteresis <= 0 {
		errs = append(errs, errors.New("control.hysteresis must be > 0"))
	}
	switch logic.LatchMode(c.Control.LatchMode) {
	case logic.LatchExact, logic.LatchCatchUp:
	default:
		errs = append(errs, fmt.Errorf("control.latch_mode: unknown mode %q", c.Control.LatchMode))
	}
	if _, err := time.LoadLocation(c.Control.Location); err != nil {
		errs = append(errs, fmt.Errorf("control.location: %w", err))
	}
	if err := c.Bands().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Alerts.SingleElementCooldown <= 0 || c.Alerts.TotalFailureCooldown <= 0 {
		errs = append(errs, errors.New("alerts: cooldowns must be > 0"))
	}
	if c.Alerts.Mail.Host != "" {
		if c.Alerts.Mail.From == "" || len(c.Alerts.Mail.To) == 0 {
			errs = append(errs, errors.New("alerts.mail: from and to are required when host is set"))
		}
		if c.Alerts.Mail.Attempts < 1 {
			errs = append(errs, errors.New("alerts.mail.attempts must be >= 1"))
		}
	}
	if c.Sensors.ADCSamples < 1 {
		errs = append(errs, errors.New("sensors.adc_samples must be >= 1"))
	}
	return errors.Join(errs...)
}

// Bands converts the classifier section.
func (c *Config) Bands() logic.Bands {
	return logic.Bands{
		BaselineOffset:    c.Classifier.BaselineOffset,
		NoiseFloor:        c.Classifier.NoiseFloor,
		BlownBelow:        c.Classifier.BlownBelow,
		OneElementMax:     c.Classifier.OneElementMax,
		BothElementsAbove: c.Classifier.BothElementsAbove,
		Deadband:          c.Classifier.Deadband,
	}
}

// Cooldowns returns the per-category alert cool-downs.
func (c *Config) Cooldowns() map[logic.FailureCategory]time.Duration {
	return map[logic.FailureCategory]time.Duration{
		logic.SingleElementFailure: c.Alerts.SingleElementCooldown,
		logic.TotalFailure:         c.Alerts.TotalFailureCooldown,
	}
}

// Controller returns the thermostat configuration.
func (c *Config) Controller() logic.ControllerConfig {
	return logic.ControllerConfig{
		Hysteresis: c.Control.Hysteresis,
		Bands:      c.Bands(),
		Cooldowns:  c.Cooldowns(),
	}
}

// InitialSchedule returns the configured schedule values keyed by field,
// skipping unset ones.
func (c *Config) InitialSchedule() map[logic.Field]string {
	out := make(map[logic.Field]string)
	for f, v := range map[logic.Field]string{
		logic.FieldAMTemperature: c.Schedule.AMTemperature,
		logic.FieldPMTemperature: c.Schedule.PMTemperature,
		logic.FieldAMTime:        c.Schedule.AMTime,
		logic.FieldPMTime:        c.Schedule.PMTime,
	} {
		if v != "" {
			out[f] = v
		}
	}
	return out
}

// Redacted returns a copy with secrets masked, for printing.
func (c Config) Redacted() Config {
	if c.Alerts.Mail.Password != "" {
		c.Alerts.Mail.Password = "********"
	}
	if c.HTTP.TokenSecret != "" {
		c.HTTP.TokenSecret = "********"
	}
	c.Alerts.Mail.To = append([]string(nil), c.Alerts.Mail.To...)
	return c
}
