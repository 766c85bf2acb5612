package mqtt

import "github.com/sweeney/heater-controller/internal/logic"

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(logic.Outcome) error          { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error      { return nil }
func (NopPublisher) PublishSchedule(logic.Schedule) error { return nil }
func (NopPublisher) Close() error                         { return nil }
