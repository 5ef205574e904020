package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	m := New(10)

	m.Record("fetch", 100*time.Millisecond, nil)
	m.Record("fetch", 300*time.Millisecond, nil)
	m.Record("fetch", 200*time.Millisecond, errors.New("boom"))

	stats, ok := m.Ops()["fetch"]
	require.True(t, ok)

	assert.Equal(t, int64(3), stats.Calls)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, 600*time.Millisecond, stats.TotalTime)
	assert.Equal(t, 200*time.Millisecond, stats.AvgTime)
	assert.Equal(t, 100*time.Millisecond, stats.MinTime)
	assert.Equal(t, 300*time.Millisecond, stats.MaxTime)
	assert.InDelta(t, 100.0*2/3, stats.SuccessRate, 1e-9)
}

func TestTime(t *testing.T) {
	m := New(10)

	err := m.Time("op", func() error {
		time.Sleep(time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	stats := m.Ops()["op"]
	assert.Equal(t, int64(1), stats.Calls)
	assert.GreaterOrEqual(t, stats.TotalTime, time.Millisecond)
}

func TestTimePropagatesError(t *testing.T) {
	m := New(10)
	want := errors.New("boom")

	err := m.Time("op", func() error { return want })
	assert.ErrorIs(t, err, want)
	assert.Equal(t, int64(1), m.Ops()["op"].Errors)
}

func TestOpsReturnsCopy(t *testing.T) {
	m := New(10)
	m.Record("op", time.Millisecond, nil)

	ops := m.Ops()
	ops["op"] = OpStats{Calls: 999}

	assert.Equal(t, int64(1), m.Ops()["op"].Calls)
}

func TestSamplerBoundedHistory(t *testing.T) {
	m := New(3)
	for i := 0; i < 5; i++ {
		m.sample()
	}

	samples := m.Samples(time.Time{})
	assert.Len(t, samples, 3)
}

func TestStartStop(t *testing.T) {
	m := New(10)
	m.Start(time.Millisecond)

	assert.Eventually(t, func() bool {
		return len(m.Samples(time.Time{})) > 0
	}, time.Second, time.Millisecond)

	m.Stop()
}

func TestStopWithoutStart(t *testing.T) {
	m := New(10)
	m.Stop() // must not block
}

func TestUptime(t *testing.T) {
	m := New(10)
	time.Sleep(time.Millisecond)
	assert.Greater(t, m.Uptime(), time.Duration(0))
}
