package gpio

import "sync"

// FakeRelay is a test double that records relay commands.
type FakeRelay struct {
	mu sync.Mutex

	// Commands records every Set call in order, including failed ones.
	Commands []bool

	// SetError, if set, is returned by Set and the state is left unchanged.
	SetError error

	// Closed tracks if Close was called.
	Closed bool

	state bool
}

// NewFakeRelay creates a released FakeRelay.
func NewFakeRelay() *FakeRelay {
	return &FakeRelay{}
}

func (f *FakeRelay) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = append(f.Commands, on)
	if f.SetError != nil {
		return f.SetError
	}
	f.state = on
	return nil
}

func (f *FakeRelay) State() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Close releases the relay and marks it closed.
func (f *FakeRelay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = false
	f.Closed = true
	return nil
}

// Switches counts the commands that changed the relay state.
func (f *FakeRelay) Switches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	prev := false
	for _, c := range f.Commands {
		if c != prev {
			n++
		}
		prev = c
	}
	return n
}
