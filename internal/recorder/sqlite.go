package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sweeney/heater-controller/internal/logger"
	"github.com/sweeney/heater-controller/internal/logic"
	"github.com/sweeney/heater-controller/internal/notify"
)

const timeLayout = "2006-01-02 15:04:05"

// SQLiteRecorder persists history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	log *logger.Logger

	mu       sync.Mutex
	last     logic.Outcome
	haveLast bool
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string, log *logger.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := New(db, log)
	if err := r.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Infow("sqlite recorder opened", "path", path)
	return r, nil
}

// New wraps an already opened database. Migrations are not run.
func New(db *sql.DB, log *logger.Logger) *SQLiteRecorder {
	return &SQLiteRecorder{db: db, log: log}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS outcomes (
		id          TEXT PRIMARY KEY,
		occurred_at TEXT NOT NULL,
		relay       TEXT NOT NULL,
		health      TEXT NOT NULL,
		mode        TEXT NOT NULL,
		reason      TEXT,
		temperature REAL,
		target      REAL,
		current     REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outcomes_ts ON outcomes(occurred_at)`,

	`CREATE TABLE IF NOT EXISTS alerts (
		id          TEXT PRIMARY KEY,
		occurred_at TEXT NOT NULL,
		category    TEXT NOT NULL,
		subject     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(occurred_at)`,

	`CREATE TABLE IF NOT EXISTS schedule_changes (
		id          TEXT PRIMARY KEY,
		occurred_at TEXT NOT NULL,
		field       TEXT NOT NULL,
		am_temp     REAL,
		pm_temp     REAL,
		am_time     TEXT,
		pm_time     TEXT
	)`,
}

func (r *SQLiteRecorder) migrate(ctx context.Context) error {
	for _, s := range migrations {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordOutcome inserts o if it changed state since the last recorded row.
func (r *SQLiteRecorder) RecordOutcome(ctx context.Context, o logic.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.haveLast && o.SameState(r.last) {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO outcomes
		(id, occurred_at, relay, health, mode, reason, temperature, target, current)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		uuid.NewString(), o.Time.UTC().Format(timeLayout),
		string(o.Relay), string(o.Health), string(o.Mode), string(o.Reason),
		nullable(o.Temperature), nullable(o.Target), nullable(o.Current),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	r.last, r.haveLast = o, true
	return nil
}

// RecordAlert inserts one fired alert.
func (r *SQLiteRecorder) RecordAlert(ctx context.Context, a notify.Alert) error {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO alerts (id, occurred_at, category, subject) VALUES (?,?,?,?)`,
		id, a.Time.UTC().Format(timeLayout), string(a.Category), a.Subject)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RecordScheduleChange stores the schedule after an accepted update to field.
func (r *SQLiteRecorder) RecordScheduleChange(ctx context.Context, field logic.Field, s logic.Schedule) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO schedule_changes
		(id, occurred_at, field, am_temp, pm_temp, am_time, pm_time)
		VALUES (?,?,?,?,?,?,?)`,
		uuid.NewString(), time.Now().UTC().Format(timeLayout), string(field),
		nullable(s.AMTemp), nullable(s.PMTemp), clock(s.AMTime, s.AMTimeSet), clock(s.PMTime, s.PMTimeSet),
	)
	if err != nil {
		return fmt.Errorf("insert schedule change: %w", err)
	}
	return nil
}

// RecentAlerts returns up to n alerts, newest first.
func (r *SQLiteRecorder) RecentAlerts(ctx context.Context, n int) ([]AlertRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, occurred_at, category, subject FROM alerts ORDER BY occurred_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	out := make([]AlertRecord, 0, n)
	for rows.Next() {
		var (
			rec     AlertRecord
			at      string
			cat     string
			subject sql.NullString
		)
		if err := rows.Scan(&rec.ID, &at, &cat, &subject); err != nil {
			return nil, err
		}
		rec.Time, err = time.Parse(timeLayout, at)
		if err != nil {
			return nil, fmt.Errorf("parse alert time %q: %w", at, err)
		}
		rec.Category = logic.FailureCategory(cat)
		rec.Subject = subject.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	if r.db == nil {
		return errors.New("recorder not open")
	}
	return r.db.Close()
}

func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func clock(c logic.ClockTime, set bool) any {
	if !set {
		return nil
	}
	return c.String()
}
