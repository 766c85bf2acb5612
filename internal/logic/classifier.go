package logic

import (
	"errors"
	"math"
)

// Bands configures the current-sense classifier. All values are in the
// corrected current unit (amps after offset removal).
type Bands struct {
	// BaselineOffset is the sensor zero-point subtracted from every sample.
	BaselineOffset float64
	// NoiseFloor: corrected readings below it are treated as exactly 0.
	NoiseFloor float64
	// BlownBelow is the edge between BOTH_ELEMENTS_BLOWN and ONE_ELEMENT_ON.
	BlownBelow float64
	// OneElementMax is the upper end of the ONE_ELEMENT_ON band.
	OneElementMax float64
	// BothElementsAbove is the edge above which BOTH_ELEMENTS_ON is entered.
	BothElementsAbove float64
	// Deadband is the extra margin required to leave a band for its neighbour.
	Deadband float64
}

// DefaultBands returns edges for a pair of 100W elements on a 1.5A/3.0A split.
func DefaultBands() Bands {
	return Bands{
		BaselineOffset:    0,
		NoiseFloor:        0.25,
		BlownBelow:        1.5,
		OneElementMax:     3.0,
		BothElementsAbove: 3.0,
		Deadband:          0.25,
	}
}

// Validate checks the band edges are ordered and the deadband covers noise.
func (b Bands) Validate() error {
	switch {
	case b.NoiseFloor < 0 || b.Deadband < 0 || b.BaselineOffset < 0:
		return errors.New("classifier: offset, noise floor and deadband must be >= 0")
	case b.BlownBelow <= b.NoiseFloor:
		return errors.New("classifier: blown edge must be above the noise floor")
	case b.OneElementMax < b.BlownBelow:
		return errors.New("classifier: one-element max must be >= blown edge")
	case b.BothElementsAbove < b.OneElementMax:
		return errors.New("classifier: both-elements edge must be >= one-element max")
	case b.Deadband < b.NoiseFloor:
		return errors.New("classifier: deadband must be >= noise floor")
	case b.BlownBelow-b.Deadband <= 0:
		return errors.New("classifier: deadband must be smaller than the blown edge")
	}
	return nil
}

// Classifier maps raw RMS current samples to Health, resisting chatter
// between adjacent bands. Not safe for concurrent use; it is owned by the
// control loop.
type Classifier struct {
	bands Bands
	last  Health
}

// NewClassifier creates a classifier with no remembered state.
func NewClassifier(bands Bands) *Classifier {
	return &Classifier{bands: bands, last: HealthStartup}
}

// Bands returns the classifier configuration.
func (c *Classifier) Bands() Bands {
	return c.bands
}

// Correct removes the baseline offset and suppresses noise.
func (c *Classifier) Correct(raw float64) float64 {
	v := raw - c.bands.BaselineOffset
	if v < 0 {
		v = 0
	}
	if v < c.bands.NoiseFloor {
		v = 0
	}
	return v
}

// Classify corrects raw and returns the resulting health.
// Callers must only classify while the relay is commanded ON.
func (c *Classifier) Classify(raw float64) Health {
	if math.IsNaN(raw) {
		return c.last
	}
	v := c.Correct(raw)
	next := c.band(v)
	c.last = c.hold(next, v)
	return c.last
}

// band is the memoryless classification of a corrected value.
func (c *Classifier) band(v float64) Health {
	b := c.bands
	switch {
	case v < b.BlownBelow:
		return HealthBothBlown
	case v <= b.OneElementMax:
		return HealthOneOn
	case v > b.BothElementsAbove:
		return HealthBothOn
	}
	// Between OneElementMax and BothElementsAbove.
	if c.last == HealthBothOn {
		return HealthBothOn
	}
	return HealthOneOn
}

// hold keeps the previous state when next is an adjacent band and v has not
// cleared the shared edge by the deadband.
func (c *Classifier) hold(next Health, v float64) Health {
	b := c.bands
	switch {
	case c.last == HealthOneOn && next == HealthBothOn && v <= b.BothElementsAbove+b.Deadband:
		return HealthOneOn
	case c.last == HealthOneOn && next == HealthBothBlown && v >= b.BlownBelow-b.Deadband:
		return HealthOneOn
	case c.last == HealthBothOn && next == HealthOneOn && v >= b.BothElementsAbove-b.Deadband:
		return HealthBothOn
	case c.last == HealthBothBlown && next == HealthOneOn && v <= b.BlownBelow+b.Deadband:
		return HealthBothBlown
	}
	return next
}

// Last returns the most recently classified state.
func (c *Classifier) Last() Health {
	return c.last
}

// Forget clears the remembered state, e.g. when the relay turns off.
func (c *Classifier) Forget() {
	c.last = HealthStartup
}
