package logic

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Temperature limits accepted for schedule setpoints (°C).
const (
	MinSetpoint = 0.0
	MaxSetpoint = 50.0
)

var (
	ErrInvalidTemperature = errors.New("invalid temperature")
	ErrInvalidTime        = errors.New("invalid time")
	ErrUnknownField       = errors.New("unknown schedule field")
)

// Field names a mutable schedule value.
type Field string

const (
	FieldAMTemperature Field = "am_temperature"
	FieldPMTemperature Field = "pm_temperature"
	FieldAMTime        Field = "am_time"
	FieldPMTime        Field = "pm_time"
)

// Fields lists all schedule fields.
var Fields = []Field{FieldAMTemperature, FieldPMTemperature, FieldAMTime, FieldPMTime}

// LatchMode selects when the active target is refreshed from the schedule.
type LatchMode string

const (
	// LatchExact latches only during the minute equal to the period start.
	LatchExact LatchMode = "exact"
	// LatchCatchUp latches once per period and day as soon as the clock is
	// at or past the period start, so a skipped minute is not lost.
	LatchCatchUp LatchMode = "catchup"
)

// ClockTime is a wall-clock time of day with minute resolution.
type ClockTime struct {
	Hour   int
	Minute int
}

// Noon is the fixed boundary between the AM and PM periods.
var Noon = ClockTime{Hour: 12}

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) ClockTime {
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}
}

// ParseClock parses a strict 24-hour "HH:MM" string.
func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	if len(s) != 5 || s[2] != ':' || !isDigit(s[0]) || !isDigit(s[1]) || !isDigit(s[3]) || !isDigit(s[4]) {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, err1 := strconv.Atoi(s[:2])
	m, err2 := strconv.Atoi(s[3:])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// Before reports whether c is strictly earlier in the day than other.
func (c ClockTime) Before(other ClockTime) bool {
	return c.minutes() < other.minutes()
}

func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// IsAM reports whether c falls in the AM period.
func (c ClockTime) IsAM() bool {
	return c.Before(Noon)
}

// Schedule is a copy of the AM/PM setpoints. Unset temperatures are NaN and
// unset times have the matching *Set flag false.
type Schedule struct {
	AMTemp    float64
	PMTemp    float64
	AMTime    ClockTime
	AMTimeSet bool
	PMTime    ClockTime
	PMTimeSet bool
}

// EmptySchedule returns a schedule with every field unset.
func EmptySchedule() Schedule {
	return Schedule{AMTemp: math.NaN(), PMTemp: math.NaN()}
}

// Validate checks every set field against its invariant.
func (s Schedule) Validate() error {
	for _, t := range []float64{s.AMTemp, s.PMTemp} {
		if !math.IsNaN(t) && !validSetpoint(t) {
			return fmt.Errorf("%w: %v", ErrInvalidTemperature, t)
		}
	}
	for _, c := range []struct {
		set bool
		t   ClockTime
	}{{s.AMTimeSet, s.AMTime}, {s.PMTimeSet, s.PMTime}} {
		if c.set {
			if _, err := ParseClock(c.t.String()); err != nil {
				return err
			}
		}
	}
	return nil
}

func validSetpoint(t float64) bool {
	return !math.IsNaN(t) && t >= MinSetpoint && t <= MaxSetpoint
}

// ScheduleStore holds the schedule and the latched active target.
// It is safe for concurrent use: schedule updates arrive on MQTT and HTTP
// goroutines while the control loop reads it.
type ScheduleStore struct {
	mu       sync.RWMutex
	sched    Schedule
	mode     LatchMode
	active   float64
	lastKey  string // date+period of the last catch-up latch
	onChange func(Field, Schedule)

	// notifyMu serializes onChange calls.
	notifyMu sync.Mutex
}

// NewScheduleStore creates an empty store with no active target.
func NewScheduleStore(mode LatchMode) *ScheduleStore {
	if mode == "" {
		mode = LatchExact
	}
	return &ScheduleStore{
		sched:  EmptySchedule(),
		mode:   mode,
		active: math.NaN(),
	}
}

// OnChange registers fn to be called after every accepted update. fn runs
// outside the store lock, one call at a time, and always receives the
// latest schedule.
func (s *ScheduleStore) OnChange(fn func(Field, Schedule)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Restore replaces the schedule, e.g. from a persisted state file. The
// active target is not touched.
func (s *ScheduleStore) Restore(sched Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sched = sched
	s.mu.Unlock()
	return nil
}

// Schedule returns a copy of the current schedule.
func (s *ScheduleStore) Schedule() Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sched
}

// ResolveTarget returns the setpoint of the period containing clock.
// ok is false when that period's temperature is unset.
func (s *ScheduleStore) ResolveTarget(clock ClockTime) (target float64, am bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resolve(s.sched, clock)
}

func resolve(sched Schedule, clock ClockTime) (float64, bool, bool) {
	am := clock.IsAM()
	t := sched.PMTemp
	if am {
		t = sched.AMTemp
	}
	if math.IsNaN(t) {
		return math.NaN(), am, false
	}
	return t, am, true
}

// Apply validates value for field and commits it. The store is unchanged
// when an error is returned.
func (s *ScheduleStore) Apply(field Field, value string) error {
	value = strings.TrimSpace(value)

	s.mu.Lock()
	next := s.sched
	switch field {
	case FieldAMTemperature, FieldPMTemperature:
		t, err := strconv.ParseFloat(value, 64)
		if err != nil || !validSetpoint(t) {
			s.mu.Unlock()
			return fmt.Errorf("%s: %w: %q", field, ErrInvalidTemperature, value)
		}
		if field == FieldAMTemperature {
			next.AMTemp = t
		} else {
			next.PMTemp = t
		}
	case FieldAMTime, FieldPMTime:
		c, err := ParseClock(value)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%s: %w", field, err)
		}
		if field == FieldAMTime {
			next.AMTime, next.AMTimeSet = c, true
		} else {
			next.PMTime, next.PMTimeSet = c, true
		}
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	s.sched = next
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		fn(field, s.Schedule())
	}
	return nil
}

// Latch copies the current period's setpoint into the active target when
// now is a latch instant. It returns true when a latch happened.
func (s *ScheduleStore) Latch(now time.Time) bool {
	clock := ClockOf(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	start, set := s.sched.PMTime, s.sched.PMTimeSet
	if clock.IsAM() {
		start, set = s.sched.AMTime, s.sched.AMTimeSet
	}
	if !set {
		return false
	}

	switch s.mode {
	case LatchCatchUp:
		if clock.Before(start) {
			return false
		}
		key := now.Format("2006-01-02") + periodName(clock.IsAM())
		if key == s.lastKey {
			return false
		}
		s.lastKey = key
	default:
		if clock != start {
			return false
		}
	}

	t, _, _ := resolve(s.sched, clock)
	s.active = t
	return true
}

// Seed sets the active target from the period containing now, regardless
// of the latch instant. Used once at startup.
func (s *ScheduleStore) Seed(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active, _, _ = resolve(s.sched, ClockOf(now))
}

// Active returns the latched target. ok is false when none is available.
func (s *ScheduleStore) Active() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, !math.IsNaN(s.active)
}

func periodName(am bool) string {
	if am {
		return "AM"
	}
	return "PM"
}
