package trigger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"spc_monitor/internal/windowstats"
)

type feed struct {
	times  []float64
	values []float64
	pos    int
}

func (f *feed) Next() (float64, float64, error) {
	if f.pos >= len(f.times) {
		return 0, 0, errors.New("exhausted")
	}
	t, v := f.times[f.pos], f.values[f.pos]
	f.pos++
	return t, v, nil
}

func (f *feed) push(t, v float64) {
	f.times = append(f.times, t)
	f.values = append(f.values, v)
}

// bufferOf returns a point buffer holding vals at times 0, 10, 20, ...
func bufferOf(t *testing.T, capacity float64, vals []float64) *windowstats.Buffer {
	t.Helper()
	f := &feed{}
	b, err := windowstats.NewBuffer("data", f, capacity, windowstats.Points)
	require.NoError(t, err)
	for i, v := range vals {
		f.push(float64(i*10), v)
		require.NoError(t, b.Append())
	}
	return b
}

type recordingExporter struct {
	begun    [][]float64
	extended [][]float64
	failNext error
}

func (r *recordingExporter) Begin(c *Chain) error {
	if err := r.failNext; err != nil {
		r.failNext = nil
		return err
	}
	c.Output = "chain-" + c.ID
	r.begun = append(r.begun, append([]float64(nil), c.Values...))
	return nil
}

func (r *recordingExporter) Extend(c *Chain, added windowstats.Window) error {
	if err := r.failNext; err != nil {
		r.failNext = nil
		return err
	}
	r.extended = append(r.extended, added.Values)
	return nil
}
