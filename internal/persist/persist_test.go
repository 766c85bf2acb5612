package persist

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/heater-controller/internal/logic"
)

func TestLoadMissingFile(t *testing.T) {
	sched, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(sched.AMTemp))
	assert.True(t, math.IsNaN(sched.PMTemp))
	assert.False(t, sched.AMTimeSet)
	assert.False(t, sched.PMTimeSet)
}

func TestSaveLoadPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "schedule.yaml")
	sched := logic.EmptySchedule()
	sched.AMTemp = 19.5
	sched.PMTime, sched.PMTimeSet = logic.ClockTime{Hour: 17, Minute: 30}, true

	require.NoError(t, Save(path, sched))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "am_temperature: 19.5\npm_time: \"17:30\"\n", string(data))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 19.5, got.AMTemp)
	assert.True(t, math.IsNaN(got.PMTemp))
	assert.False(t, got.AMTimeSet)
	assert.Equal(t, logic.ClockTime{Hour: 17, Minute: 30}, got.PMTime)
	assert.True(t, got.PMTimeSet)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	s := logic.EmptySchedule()
	s.PMTemp = 18
	require.NoError(t, Save(path, s))
	s.PMTemp = 21
	require.NoError(t, Save(path, s))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 21.0, got.PMTemp)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"bad time", "am_time: \"7:00\"\n", logic.ErrInvalidTime},
		{"out of range", "pm_temperature: 80\n", logic.ErrInvalidTemperature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "schedule.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := Load(path)
			assert.True(t, errors.Is(err, tt.want), "err = %v", err)
		})
	}

	path := filepath.Join(t.TempDir(), "schedule.yaml")
	require.NoError(t, os.WriteFile(path, []byte("am_temperature: [1"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
