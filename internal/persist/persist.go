// Package persist keeps the schedule on disk across restarts.
package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/heater-controller/internal/logic"
)

// file is the on-disk form. Unset fields are omitted.
type file struct {
	AMTemperature *float64 `yaml:"am_temperature,omitempty"`
	PMTemperature *float64 `yaml:"pm_temperature,omitempty"`
	AMTime        string   `yaml:"am_time,omitempty"`
	PMTime        string   `yaml:"pm_time,omitempty"`
}

// Load reads the schedule at path. A missing file yields an empty schedule.
func Load(path string) (logic.Schedule, error) {
	sched := logic.EmptySchedule()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return sched, nil
	}
	if err != nil {
		return sched, fmt.Errorf("read schedule: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return sched, fmt.Errorf("parse schedule %s: %w", path, err)
	}

	if f.AMTemperature != nil {
		sched.AMTemp = *f.AMTemperature
	}
	if f.PMTemperature != nil {
		sched.PMTemp = *f.PMTemperature
	}
	if f.AMTime != "" {
		c, err := logic.ParseClock(f.AMTime)
		if err != nil {
			return logic.EmptySchedule(), fmt.Errorf("am_time: %w", err)
		}
		sched.AMTime, sched.AMTimeSet = c, true
	}
	if f.PMTime != "" {
		c, err := logic.ParseClock(f.PMTime)
		if err != nil {
			return logic.EmptySchedule(), fmt.Errorf("pm_time: %w", err)
		}
		sched.PMTime, sched.PMTimeSet = c, true
	}
	if err := sched.Validate(); err != nil {
		return logic.EmptySchedule(), err
	}
	return sched, nil
}

// Save writes s to path atomically.
func Save(path string, s logic.Schedule) error {
	var f file
	if !math.IsNaN(s.AMTemp) {
		v := s.AMTemp
		f.AMTemperature = &v
	}
	if !math.IsNaN(s.PMTemp) {
		v := s.PMTemp
		f.PMTemperature = &v
	}
	if s.AMTimeSet {
		f.AMTime = s.AMTime.String()
	}
	if s.PMTimeSet {
		f.PMTime = s.PMTime.String()
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".schedule-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write schedule: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync schedule: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close schedule: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace schedule: %w", err)
	}
	return nil
}
