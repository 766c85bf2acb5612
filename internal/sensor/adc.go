package sensor

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ADCCurrentSensor computes RMS current from an IIO ADC channel wired to a
// current transformer. Each RMS call takes a fixed number of samples, so its
// latency is bounded.
type ADCCurrentSensor struct {
	path    string
	samples int
	scale   float64
	open    func(string) (io.ReadSeekCloser, error)
}

// NewADCCurrentSensor reads samples values per call from path and converts
// the RMS of the AC component to amps by multiplying by scale.
func NewADCCurrentSensor(path string, samples int, scale float64) (*ADCCurrentSensor, error) {
	if samples < 1 {
		return nil, fmt.Errorf("adc: samples must be >= 1, got %d", samples)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("adc: %w", err)
	}
	return &ADCCurrentSensor{
		path:    path,
		samples: samples,
		scale:   scale,
		open: func(p string) (io.ReadSeekCloser, error) {
			return os.Open(p)
		},
	}, nil
}

// RMS samples the channel and returns the RMS current in amps.
func (a *ADCCurrentSensor) RMS() (float64, error) {
	f, err := a.open(a.path)
	if err != nil {
		return 0, fmt.Errorf("adc open: %w", err)
	}
	defer f.Close()

	raw := make([]float64, 0, a.samples)
	buf := make([]byte, 32)
	for len(raw) < a.samples {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return 0, fmt.Errorf("adc seek: %w", err)
		}
		n, err := f.Read(buf)
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("adc read: %w", err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(string(buf[:n])), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: adc value %q", ErrInvalidReading, buf[:n])
		}
		raw = append(raw, v)
	}
	return rms(raw) * a.scale, nil
}

// rms returns the RMS of xs about their mean, removing the DC bias of the
// transformer's midpoint.
func rms(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
