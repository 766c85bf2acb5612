// Package gpio drives the heater relay with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Relay switches the heating load.
type Relay interface {
	// Set energizes (true) or releases (false) the relay.
	Set(on bool) error

	// State returns the last successfully commanded state.
	State() bool

	// Close releases the relay and GPIO resources.
	Close() error
}

// Defaults for a Raspberry Pi relay HAT (BCM numbering).
const (
	DefaultChip     = "gpiochip0"
	DefaultRelayPin = 17
)
