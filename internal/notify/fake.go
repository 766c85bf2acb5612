package notify

import (
	"context"
	"sync"
)

// FakeNotifier records alerts for test assertions.
type FakeNotifier struct {
	mu     sync.Mutex
	alerts []Alert

	// Err, if set, is returned by Notify after recording the alert.
	Err error

	// Delivered receives every alert when non-nil.
	Delivered chan Alert
}

func (f *FakeNotifier) Notify(_ context.Context, a Alert) error {
	f.mu.Lock()
	f.alerts = append(f.alerts, a)
	err := f.Err
	f.mu.Unlock()
	if f.Delivered != nil {
		f.Delivered <- a
	}
	return err
}

// Alerts returns a copy of the recorded alerts.
func (f *FakeNotifier) Alerts() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Alert(nil), f.alerts...)
}
