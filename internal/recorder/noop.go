package recorder

import (
	"context"

	"github.com/sweeney/heater-controller/internal/logic"
	"github.com/sweeney/heater-controller/internal/notify"
)

// NoopRecorder is used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (NoopRecorder) RecordOutcome(context.Context, logic.Outcome) error { return nil }
func (NoopRecorder) RecordAlert(context.Context, notify.Alert) error    { return nil }
func (NoopRecorder) RecordScheduleChange(context.Context, logic.Field, logic.Schedule) error {
	return nil
}
func (NoopRecorder) RecentAlerts(context.Context, int) ([]AlertRecord, error) { return nil, nil }
func (NoopRecorder) Close() error                                             { return nil }
