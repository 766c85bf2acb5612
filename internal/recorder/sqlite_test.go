package recorder

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/heater-controller/internal/logger"
	"github.com/sweeney/heater-controller/internal/logic"
	"github.com/sweeney/heater-controller/internal/notify"
)

func newMock(t *testing.T) (*SQLiteRecorder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, logger.Nop()), mock
}

var t0 = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func outcome(relay logic.RelayCommand, health logic.Health) logic.Outcome {
	return logic.Outcome{
		Time:        t0,
		Relay:       relay,
		Health:      health,
		Mode:        logic.ModeHeatingOn,
		Reason:      logic.ReasonBelowTarget,
		Temperature: 19.5,
		Target:      20,
		Current:     math.NaN(),
	}
}

func TestMigrate(t *testing.T) {
	r, mock := newMock(t)
	for _, table := range []string{
		"CREATE TABLE IF NOT EXISTS outcomes",
		"CREATE INDEX IF NOT EXISTS idx_outcomes_ts",
		"CREATE TABLE IF NOT EXISTS alerts",
		"CREATE INDEX IF NOT EXISTS idx_alerts_ts",
		"CREATE TABLE IF NOT EXISTS schedule_changes",
	} {
		mock.ExpectExec(table).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, r.migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateError(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS outcomes").WillReturnError(errors.New("disk full"))

	err := r.migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRecordOutcomeOnlyOnChange(t *testing.T) {
	r, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO outcomes").
		WithArgs(sqlmock.AnyArg(), "2026-01-01 08:00:00", "ON", "BOTH_ELEMENTS_ON", "HEATING_ON", "below_target", 19.5, 20.0, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outcomes").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "ON", "ONE_ELEMENT_ON", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.RecordOutcome(ctx, outcome(logic.RelayOn, logic.HealthBothOn)))
	require.NoError(t, r.RecordOutcome(ctx, outcome(logic.RelayOn, logic.HealthBothOn)))
	require.NoError(t, r.RecordOutcome(ctx, outcome(logic.RelayOn, logic.HealthOneOn)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcomeRetriesAfterError(t *testing.T) {
	r, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO outcomes").WillReturnError(errors.New("locked"))
	mock.ExpectExec("INSERT INTO outcomes").WillReturnResult(sqlmock.NewResult(0, 1))

	o := outcome(logic.RelayOff, logic.HealthOff)
	require.Error(t, r.RecordOutcome(ctx, o))
	require.NoError(t, r.RecordOutcome(ctx, o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAlert(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec("INSERT INTO alerts").
		WithArgs("a-1", "2026-01-01 08:00:00", "TOTAL_FAILURE", "boiler: both failed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.RecordAlert(context.Background(), notify.Alert{
		ID:       "a-1",
		Category: logic.TotalFailure,
		Time:     t0,
		Subject:  "boiler: both failed",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordScheduleChange(t *testing.T) {
	r, mock := newMock(t)
	sched := logic.EmptySchedule()
	sched.AMTemp = 20
	sched.AMTime, sched.AMTimeSet = logic.ClockTime{Hour: 6, Minute: 30}, true

	mock.ExpectExec("INSERT INTO schedule_changes").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "am_time", 20.0, nil, "06:30", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.RecordScheduleChange(context.Background(), logic.FieldAMTime, sched))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentAlerts(t *testing.T) {
	r, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"id", "occurred_at", "category", "subject"}).
		AddRow("b", "2026-01-01 09:00:00", "TOTAL_FAILURE", "total").
		AddRow("a", "2026-01-01 08:00:00", "SINGLE_ELEMENT_FAILURE", nil)
	mock.ExpectQuery("SELECT id, occurred_at, category, subject FROM alerts").
		WithArgs(2).
		WillReturnRows(rows)

	got, err := r.RecentAlerts(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, logic.TotalFailure, got[0].Category)
	assert.Equal(t, t0.Add(time.Hour), got[0].Time)
	assert.Equal(t, "", got[1].Subject)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentAlertsNone(t *testing.T) {
	r, _ := newMock(t)
	got, err := r.RecentAlerts(context.Background(), 0)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	ctx := context.Background()
	assert.NoError(t, r.RecordOutcome(ctx, logic.Outcome{}))
	assert.NoError(t, r.RecordAlert(ctx, notify.Alert{}))
	assert.NoError(t, r.RecordScheduleChange(ctx, logic.FieldAMTemperature, logic.EmptySchedule()))
	alerts, err := r.RecentAlerts(ctx, 5)
	assert.NoError(t, err)
	assert.Nil(t, alerts)
	assert.NoError(t, r.Close())
}

func TestOpenFile(t *testing.T) {
	r, err := Open(t.TempDir()+"/history.db", logger.Nop())
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	require.NoError(t, r.RecordAlert(ctx, notify.Alert{ID: "x", Category: logic.SingleElementFailure, Time: t0, Subject: "s"}))
	got, err := r.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s", got[0].Subject)
	assert.Equal(t, t0, got[0].Time)
}
