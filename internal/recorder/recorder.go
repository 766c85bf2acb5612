// Package recorder mirrors controller history into a local database.
package recorder

import (
	"context"
	"time"

	"github.com/sweeney/heater-controller/internal/logic"
	"github.com/sweeney/heater-controller/internal/notify"
)

// AlertRecord is one row of alert history.
type AlertRecord struct {
	ID       string
	Time     time.Time
	Category logic.FailureCategory
	Subject  string
}

// Recorder persists historical data for later inspection.
type Recorder interface {
	// RecordOutcome stores o when its relay, health or mode differs from
	// the last recorded outcome.
	RecordOutcome(ctx context.Context, o logic.Outcome) error
	RecordAlert(ctx context.Context, a notify.Alert) error
	RecordScheduleChange(ctx context.Context, field logic.Field, s logic.Schedule) error
	RecentAlerts(ctx context.Context, n int) ([]AlertRecord, error)
	Close() error
}
