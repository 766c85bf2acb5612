// Command heaterd runs the heater controller: it keeps a room at the
// scheduled AM/PM temperature with a relay and reports element failures.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/heater-controller/internal/config"
	"github.com/sweeney/heater-controller/internal/logger"
	"github.com/sweeney/heater-controller/internal/sensor"
	"github.com/sweeney/heater-controller/internal/web"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var configFilename string

	root := &cobra.Command{
		Use:          "heaterd",
		Short:        "AM/PM thermostat and heating element monitor",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			config.SetDefaults(v)
			return config.Read(v, configFilename)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level)
			defer log.Sync()
			return run(cmd.Context(), cfg, log)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFilename, "config", "", "configuration file")
	pf.Bool("debug", false, "log debug messages")
	_ = v.BindPFlag("debug", pf.Lookup("debug"))

	f := root.Flags()
	f.Duration("poll", 0, "control cycle interval")
	f.String("broker", "", "MQTT broker address (empty keeps the configured value)")
	f.String("http", "", "HTTP status address")
	_ = v.BindPFlag("control.poll", f.Lookup("poll"))
	_ = v.BindPFlag("mqtt.broker", f.Lookup("broker"))
	_ = v.BindPFlag("http.addr", f.Lookup("http"))

	root.AddCommand(newPrintStateCmd(v), newConfigCmd(v), newTokenCmd(v))
	return root
}

// loadConfig decodes v and applies --debug.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if v.GetBool("debug") {
		cfg.Log.Level = logger.DebugLevel
	}
	return cfg, nil
}

func newPrintStateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Read the sensors once and print the values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			therm, err := sensor.NewW1Thermometer(cfg.Sensors.Thermometer)
			if err != nil {
				return fmt.Errorf("init thermometer: %w", err)
			}
			current, err := sensor.NewADCCurrentSensor(cfg.Sensors.ADC, cfg.Sensors.ADCSamples, cfg.Sensors.ADCScale)
			if err != nil {
				return fmt.Errorf("init current sensor: %w", err)
			}
			return printState(cmd, therm, current)
		},
	}
}

func printState(cmd *cobra.Command, therm sensor.Thermometer, current sensor.CurrentSensor) error {
	temp, err := therm.Temperature()
	if err != nil {
		return fmt.Errorf("read temperature: %w", err)
	}
	amps, err := current.RMS()
	if err != nil {
		return fmt.Errorf("read current: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Temperature: %.1f °C, Current: %.2f A\n", temp, amps)
	return nil
}

func newConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg.Redacted()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newTokenCmd(v *viper.Viper) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for schedule updates over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			tok, err := web.IssueToken(cfg.HTTP.TokenSecret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}
