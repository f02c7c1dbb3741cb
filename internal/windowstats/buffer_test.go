package windowstats

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"spc_monitor/internal/model"
)

type feed struct {
	times  []float64
	values []float64
	pos    int
	fail   bool
}

func (f *feed) Next() (float64, float64, error) {
	if f.fail || f.pos >= len(f.times) {
		return 0, 0, errors.New("no data")
	}
	t, v := f.times[f.pos], f.values[f.pos]
	f.pos++
	return t, v, nil
}

func filled(t *testing.T, capacity float64, ct CapacityType, times, values []float64) *Buffer {
	t.Helper()
	b, err := NewBuffer("data", &feed{times: times, values: values}, capacity, ct)
	require.NoError(t, err)
	for range times {
		require.NoError(t, b.Append())
	}
	return b
}

func TestPointsCapacity(t *testing.T) {
	b := filled(t, 3, Points, []float64{1, 2, 3, 4}, []float64{10, 20, 30, 40})

	if b.Len() != 3 {
		t.Fatalf("expected length 3 after rollover, got %d", b.Len())
	}
	if got := b.All().Values; got[0] != 20 || got[2] != 40 {
		t.Fatalf("expected oldest sample evicted, got %v", got)
	}
}

func TestDurationCapacityBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f := &feed{}
	now := 0.0
	for i := 0; i < 500; i++ {
		now += float64(rng.Intn(40))
		f.times = append(f.times, now)
		f.values = append(f.values, rng.NormFloat64())
	}
	b, err := NewBuffer("data", f, 100, Milliseconds)
	require.NoError(t, err)

	for range f.times {
		require.NoError(t, b.Append())
		require.True(t, b.Len() <= 1 || b.Span() < 100, "span %v with %d samples", b.Span(), b.Len())
	}
}

func TestPointsCapacityBound(t *testing.T) {
	f := &feed{}
	for i := 0; i < 50; i++ {
		f.times = append(f.times, float64(i))
		f.values = append(f.values, float64(i))
	}
	b, err := NewBuffer("data", f, 7, Points)
	require.NoError(t, err)
	for range f.times {
		require.NoError(t, b.Append())
		require.LessOrEqual(t, b.Len(), 7)
	}
}

func TestBurstEvictsRepeatedly(t *testing.T) {
	b := filled(t, 10, Milliseconds, []float64{0, 2, 4, 6, 8, 30}, []float64{1, 2, 3, 4, 5, 6})

	require.Equal(t, 1, b.Len())
	require.Equal(t, 0.0, b.Span())
	latest, ok := b.Latest()
	require.True(t, ok)
	require.Equal(t, 6.0, latest.Value)
}

func TestFailingSourceLeavesBufferUnchanged(t *testing.T) {
	f := &feed{times: []float64{0, 1, 2}, values: []float64{1, 2, 3}}
	b, err := NewBuffer("data", f, 2, Points)
	require.NoError(t, err)
	require.NoError(t, b.Append())
	require.NoError(t, b.Append())

	f.fail = true
	err = b.Append()
	require.Error(t, err)
	require.True(t, model.IsKind(err, model.SourceUnavailable))
	require.Equal(t, []float64{1, 2}, b.All().Values)
}

func TestTail(t *testing.T) {
	b := filled(t, 100, Points, []float64{1, 2, 3, 4, 5, 6}, []float64{10, 20, 30, 40, 50, 60})

	require.Equal(t, []float64{50, 60}, b.TailValues(2, 1))
	require.Equal(t, []float64{20, 40, 60}, b.TailValues(3, 2))
	require.Equal(t, []float64{2, 4, 6}, b.TailTimes(3, 2))
	require.Len(t, b.TailStamps(3, 2), 3)

	// Not enough data: everything, stride ignored.
	require.Equal(t, []float64{10, 20, 30, 40, 50, 60}, b.TailValues(4, 2))
	require.Equal(t, []float64{10, 20, 30, 40, 50, 60}, b.TailValues(10, 1))
	require.Len(t, b.TailStamps(10, 1), 6)
	require.Empty(t, b.TailValues(0, 1))
}

func TestTailEmpty(t *testing.T) {
	b, err := NewBuffer("data", &feed{}, 5, Points)
	require.NoError(t, err)

	require.Zero(t, b.Tail(3, 1).Len())
	require.Zero(t, b.TailByDuration(100).Len())
	require.Equal(t, 0.0, b.Span())
	_, ok := b.Latest()
	require.False(t, ok)
}

func TestTailByDuration(t *testing.T) {
	b := filled(t, 1000, Milliseconds, []float64{0, 10, 20, 30, 40}, []float64{1, 2, 3, 4, 5})

	require.Equal(t, 2, b.CountWithin(10))
	require.Equal(t, []float64{4, 5}, b.TailByDuration(10).Values)
	require.Equal(t, []float64{30, 40}, b.TailByDuration(15).Times)
	require.Equal(t, 5, b.TailByDuration(1000).Len())
	require.Equal(t, []float64{5}, b.TailByDuration(0).Values)
}

func TestSince(t *testing.T) {
	b := filled(t, 1000, Milliseconds, []float64{0, 10, 10, 20, 30}, []float64{1, 2, 3, 4, 5})

	require.Equal(t, []float64{4, 5}, b.Since(10).Values)
	require.Equal(t, []float64{2, 3, 4, 5}, b.Since(5).Values)
	require.Zero(t, b.Since(30).Len())
}

func TestSpanAndClear(t *testing.T) {
	b := filled(t, 1000, Milliseconds, []float64{5}, []float64{1})
	require.Equal(t, 0.0, b.Span())

	b = filled(t, 1000, Milliseconds, []float64{5, 25}, []float64{1, 2})
	require.Equal(t, 20.0, b.Span())

	b.Clear()
	require.Zero(t, b.Len())
	require.Equal(t, 1000.0, b.Capacity())
	require.Equal(t, Milliseconds, b.CapacityType())
}

func TestTimestamps(t *testing.T) {
	b := filled(t, 1000, Milliseconds, []float64{1_700_000_000_500}, []float64{1})
	latest, _ := b.Latest()
	require.Equal(t, int64(1_700_000_000), latest.Stamp.Unix())
	require.InDelta(t, 500_000_000, latest.Stamp.Nanosecond(), 1000)

	b = filled(t, 1_000_000, Seconds, []float64{1_700_000_000_000_000}, []float64{1})
	latest, _ = b.Latest()
	require.Equal(t, int64(1_700_000_000), latest.Stamp.Unix())
}

func TestWithTimeScale(t *testing.T) {
	src := &feed{times: []float64{1_700_000_000_000_000}, values: []float64{1}}
	b, err := NewBuffer("data", src, 10, Points, WithTimeScale(MicrosecondScale))
	require.NoError(t, err)
	require.Equal(t, MicrosecondScale, b.Scale())
	require.NoError(t, b.Append())
	latest, _ := b.Latest()
	require.Equal(t, int64(1_700_000_000), latest.Stamp.Unix())

	b, err = NewBuffer("data", &feed{}, 10, Points, WithTimeScale(0))
	require.NoError(t, err)
	require.Equal(t, MillisecondScale, b.Scale())

	b, err = NewBuffer("data", &feed{}, 10, Milliseconds, WithTimeScale(MicrosecondScale))
	require.NoError(t, err)
	require.Equal(t, MillisecondScale, b.Scale(), "duration buffers keep their own scale")
}

func TestNewBufferValidation(t *testing.T) {
	_, err := NewBuffer("data", &feed{}, 10, CapacityType("hours"))
	require.True(t, model.IsKind(err, model.ConfigurationInvalid))

	_, err = NewBuffer("data", &feed{}, 0, Points)
	require.True(t, model.IsKind(err, model.ConfigurationInvalid))

	_, err = NewBuffer("data", nil, 10, Points)
	require.True(t, model.IsKind(err, model.ConfigurationInvalid))
}

func TestIsDurationUnit(t *testing.T) {
	require.True(t, IsDurationUnit("ms"))
	require.True(t, IsDurationUnit("s"))
	require.False(t, IsDurationUnit("count"))
	require.False(t, IsDurationUnit("points"))
}
