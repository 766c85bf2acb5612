package notify

import (
	"context"

	"github.com/sweeney/heater-controller/internal/logger"
)

// LogNotifier writes alerts to the log. Used when mail is not configured.
type LogNotifier struct {
	Log *logger.Logger
}

func (l LogNotifier) Notify(_ context.Context, a Alert) error {
	l.Log.Warnw("ALERT", "id", a.ID, "category", a.Category, "subject", a.Subject)
	return nil
}
