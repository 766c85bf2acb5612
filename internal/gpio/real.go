//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealRelay drives a relay from a GPIO output line.
type RealRelay struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	line  *gpiocdev.Line
	state bool

	activeLow bool
}

// NewRealRelay requests pin on chip as an output, initially OFF.
// With activeLow the line is driven low to energize the relay.
func NewRealRelay(chipName string, pin int, activeLow bool) (*RealRelay, error) {
	if chipName == "" {
		chipName = DefaultChip
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(pin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}

	return &RealRelay{chip: chip, line: line, activeLow: activeLow}, nil
}

// Set drives the relay line.
func (r *RealRelay) Set(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set relay: %w", err)
	}
	r.state = on
	return nil
}

// State returns the last commanded state.
func (r *RealRelay) State() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Close drives the relay OFF, then reconfigures the line to input biased
// towards the released level so the load stays off across reboot.
func (r *RealRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.line != nil {
		if err := r.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release relay: %w", err))
		}
		r.state = false
		if err := r.line.Reconfigure(gpiocdev.AsInput, releaseBias(r.activeLow)); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure relay pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}

// releaseBias returns the pull that holds an undriven line at the relay's
// OFF level.
func releaseBias(activeLow bool) gpiocdev.LineBias {
	if activeLow {
		return gpiocdev.WithPullUp
	}
	return gpiocdev.WithPullDown
}
