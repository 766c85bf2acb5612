package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/heater-controller/internal/logic"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Control.Poll)
	assert.Equal(t, logic.DefaultHysteresis, cfg.Control.Hysteresis)
	assert.Equal(t, "exact", cfg.Control.LatchMode)
	assert.Equal(t, logic.DefaultBands(), cfg.Bands())
	assert.Equal(t, 30*time.Minute, cfg.Cooldowns()[logic.SingleElementFailure])
	assert.Equal(t, time.Hour, cfg.Cooldowns()[logic.TotalFailure])
	assert.Equal(t, 3, cfg.Alerts.Mail.Attempts)
	assert.Equal(t, "@every 15m", cfg.Heartbeat.Spec)
	assert.Empty(t, cfg.InitialSchedule())
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
control:
  hysteresis: 2.0
  latch_mode: catchup
classifier:
  baseline_offset: 1.75
  noise_floor: 0.1
  blown_below: 0.45
  one_element_max: 3.0
  both_elements_above: 3.5
  deadband: 0.1
alerts:
  single_element_cooldown: 1h
schedule:
  am_temperature: "19.5"
  am_time: "06:30"
`), 0o644))

	v := newViper(t)
	require.NoError(t, Read(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 2.0, cfg.Controller().Hysteresis)
	assert.Equal(t, "catchup", cfg.Control.LatchMode)
	assert.Equal(t, 3.5, cfg.Bands().BothElementsAbove)
	assert.Equal(t, time.Hour, cfg.Cooldowns()[logic.SingleElementFailure])
	assert.Equal(t, map[logic.Field]string{
		logic.FieldAMTemperature: "19.5",
		logic.FieldAMTime:        "06:30",
	}, cfg.InitialSchedule())
}

func TestReadMissingExplicitFile(t *testing.T) {
	v := newViper(t)
	assert.Error(t, Read(v, filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HEATERD_MQTT_ROOT", "garage/heater")
	t.Setenv("HEATERD_CONTROL_HYSTERESIS", "0.5")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, "garage/heater", cfg.MQTT.Root)
	assert.Equal(t, 0.5, cfg.Control.Hysteresis)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero poll", func(c *Config) { c.Control.Poll = 0 }},
		{"zero hysteresis", func(c *Config) { c.Control.Hysteresis = 0 }},
		{"bad latch mode", func(c *Config) { c.Control.LatchMode = "sometimes" }},
		{"bad location", func(c *Config) { c.Control.Location = "Mars/Olympus" }},
		{"deadband below noise", func(c *Config) { c.Classifier.Deadband = 0.1 }},
		{"unordered bands", func(c *Config) { c.Classifier.OneElementMax = 1.0 }},
		{"zero cooldown", func(c *Config) { c.Alerts.TotalFailureCooldown = 0 }},
		{"mail without recipients", func(c *Config) { c.Alerts.Mail.Host = "smtp.example.com"; c.Alerts.Mail.From = "h@example.com" }},
		{"no adc samples", func(c *Config) { c.Sensors.ADCSamples = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(newViper(t))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	cfg.Alerts.Mail.Password = "hunter2"
	cfg.HTTP.TokenSecret = "s3cret"

	r := cfg.Redacted()
	assert.NotContains(t, r.Alerts.Mail.Password, "hunter2")
	assert.NotContains(t, r.HTTP.TokenSecret, "s3cret")
	assert.Equal(t, "hunter2", cfg.Alerts.Mail.Password)
}
