// Package sensor reads the heater's temperature and current sensors from
// Linux sysfs.
package sensor

import (
	"errors"
	"math"
)

// Thermometer returns a temperature in °C.
type Thermometer interface {
	Temperature() (float64, error)
}

// CurrentSensor returns one raw RMS current sample.
type CurrentSensor interface {
	RMS() (float64, error)
}

// ErrInvalidReading is returned for readings the sensor flags as unusable.
var ErrInvalidReading = errors.New("sensor: invalid reading")

// ReadTemperature returns t's reading, or NaN when it fails. The control loop
// treats NaN as "no decision possible this cycle".
func ReadTemperature(t Thermometer) (float64, error) {
	v, err := t.Temperature()
	if err != nil {
		return math.NaN(), err
	}
	return v, nil
}
