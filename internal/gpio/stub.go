//go:build !linux

package gpio

import "errors"

// RealRelay is not available on non-Linux platforms.
type RealRelay struct{}

// NewRealRelay returns an error on non-Linux platforms.
func NewRealRelay(chipName string, pin int, activeLow bool) (*RealRelay, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (r *RealRelay) Set(on bool) error {
	return errors.New("gpio: not supported")
}

func (r *RealRelay) State() bool {
	return false
}

func (r *RealRelay) Close() error {
	return nil
}
