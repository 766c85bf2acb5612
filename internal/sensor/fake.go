package sensor

import "errors"

// FakeThermometer returns scripted temperatures.
// Each call consumes the next sample; the last repeats.
type FakeThermometer struct {
	Samples   []float64
	ReadError error
	index     int
}

func (f *FakeThermometer) Temperature() (float64, error) {
	return next(f.Samples, &f.index, f.ReadError)
}

// FakeCurrentSensor returns scripted RMS samples and counts reads.
type FakeCurrentSensor struct {
	Samples   []float64
	ReadError error
	Reads     int
	index     int
}

func (f *FakeCurrentSensor) RMS() (float64, error) {
	f.Reads++
	return next(f.Samples, &f.index, f.ReadError)
}

func next(samples []float64, index *int, readErr error) (float64, error) {
	if readErr != nil {
		return 0, readErr
	}
	if len(samples) == 0 {
		return 0, errors.New("no samples configured")
	}
	v := samples[*index]
	if *index < len(samples)-1 {
		*index++
	}
	return v, nil
}
