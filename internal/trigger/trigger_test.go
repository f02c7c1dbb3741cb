package trigger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"spc_monitor/internal/model"
	"spc_monitor/internal/windowstats"
)

func highRunTrigger(t *testing.T, buf *windowstats.Buffer, window float64, windowType string, opts ...Option) *Trigger {
	t.Helper()
	tr, err := New("spike", buf, window, windowType, mustFunc(t, HighRun, Params{ParamThreshold: 5}), opts...)
	require.NoError(t, err)
	return tr
}

func TestChainLifecycle(t *testing.T) {
	f := &feed{}
	buf, err := windowstats.NewBuffer("data", f, 100, windowstats.Points)
	require.NoError(t, err)
	exp := &recordingExporter{}
	tr := highRunTrigger(t, buf, 1, "count", WithExporter(exp))

	var fired []bool
	var transitions []Transition
	for i, v := range []float64{1, 2, 6, 7, 1} {
		f.push(float64(i*10), v)
		require.NoError(t, buf.Append())
		out, err := tr.Step()
		require.NoError(t, err)
		fired = append(fired, out.Fired)
		transitions = append(transitions, out.Transition)

		if i == 3 {
			require.True(t, tr.ChainOpen())
			require.Equal(t, []float64{20, 30}, tr.Chain().Times)
			require.Equal(t, []float64{6, 7}, tr.Chain().Values)
		}
	}

	require.Equal(t, []bool{false, false, true, true, false}, fired)
	require.Equal(t, []Transition{NoTransition, NoTransition, Started, Extended, Ended}, transitions)
	require.Equal(t, [][]float64{{6}}, exp.begun)
	require.Equal(t, [][]float64{{7}}, exp.extended)
	require.False(t, tr.ChainOpen())
}

func TestContinuationAppendsOnlyNewSamples(t *testing.T) {
	f := &feed{}
	buf, err := windowstats.NewBuffer("data", f, 100, windowstats.Points)
	require.NoError(t, err)
	exp := &recordingExporter{}
	tr := highRunTrigger(t, buf, 2, "count", WithExporter(exp))

	for i, v := range []float64{6, 7, 8, 9} {
		f.push(float64(i), v)
		require.NoError(t, buf.Append())
		_, err := tr.Step()
		require.NoError(t, err)
	}

	require.Equal(t, [][]float64{{6}}, exp.begun)
	require.Equal(t, []float64{6, 7, 8, 9}, tr.Chain().Values)
	require.Equal(t, 4, tr.Chain().Len())
	require.Equal(t, 0.0, tr.Chain().Earliest())
}

func TestStartEventCarriesWholeWindow(t *testing.T) {
	buf := bufferOf(t, 100, []float64{1, 6, 7, 8})
	tr := highRunTrigger(t, buf, 3, "count")

	out, err := tr.Step()
	require.NoError(t, err)
	require.Equal(t, Started, out.Transition)

	ev, ok := out.Event(tr.Name(), buf.All().Stamps[0])
	require.True(t, ok)
	require.Equal(t, model.ChainStarted, ev.Kind)
	require.Equal(t, "spike", ev.Trigger)
	require.Equal(t, 3, ev.Length)
	require.Equal(t, 10.0, ev.Earliest)
	require.Len(t, ev.Rows, 3)
	require.NotEmpty(t, ev.ChainID)

	_, ok = Outcome{Fired: true}.Event("spike", buf.All().Stamps[0])
	require.False(t, ok)
}

func TestInactiveTriggerIsSkipped(t *testing.T) {
	buf := bufferOf(t, 100, []float64{6, 7, 8})
	exp := &recordingExporter{}
	tr := highRunTrigger(t, buf, 2, "count", WithExporter(exp), WithActive(false))

	fired, err := tr.Run()
	require.NoError(t, err)
	require.False(t, fired)
	require.False(t, tr.ChainOpen())
	require.Empty(t, exp.begun)

	tr.Activate()
	fired, err = tr.Run()
	require.NoError(t, err)
	require.True(t, fired)
	require.True(t, tr.ChainOpen())
}

func TestDurationWindowWaitsForHistory(t *testing.T) {
	f := &feed{}
	buf, err := windowstats.NewBuffer("data", f, 1000, windowstats.Milliseconds)
	require.NoError(t, err)
	tr := highRunTrigger(t, buf, 30, "ms")

	for i := 0; i < 3; i++ {
		f.push(float64(i*10), 9)
		require.NoError(t, buf.Append())
		out, err := tr.Step()
		require.NoError(t, err)
		require.True(t, out.Skipped)
		require.False(t, out.Fired)
	}

	f.push(30, 9)
	require.NoError(t, buf.Append())
	out, err := tr.Step()
	require.NoError(t, err)
	require.False(t, out.Skipped)
	require.True(t, out.Fired)
	require.Equal(t, []float64{0, 10, 20, 30}, tr.Current().Times)
}

func TestFailedStartExportLeavesChainClosed(t *testing.T) {
	buf := bufferOf(t, 100, []float64{6, 7})
	exp := &recordingExporter{failNext: errors.New("read-only file system")}
	tr := highRunTrigger(t, buf, 2, "count", WithExporter(exp))

	fired, err := tr.Run()
	require.True(t, fired)
	require.True(t, model.IsKind(err, model.ExportFailed))
	var e *model.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "spike", e.Name)
	require.False(t, tr.ChainOpen())

	out, err := tr.Step()
	require.NoError(t, err)
	require.Equal(t, Started, out.Transition)
	require.Equal(t, "chain-"+tr.Chain().ID, tr.Chain().Output)
}

func TestFailedExtendExportIsReported(t *testing.T) {
	f := &feed{}
	buf, err := windowstats.NewBuffer("data", f, 100, windowstats.Points)
	require.NoError(t, err)
	exp := &recordingExporter{}
	tr := highRunTrigger(t, buf, 1, "count", WithExporter(exp))

	f.push(0, 6)
	require.NoError(t, buf.Append())
	_, err = tr.Run()
	require.NoError(t, err)

	exp.failNext = errors.New("disk full")
	f.push(1, 7)
	require.NoError(t, buf.Append())
	_, err = tr.Run()
	require.True(t, model.IsKind(err, model.ExportFailed))
	require.True(t, tr.ChainOpen())
}

func TestFailedExtendRetriesSameSamples(t *testing.T) {
	f := &feed{}
	buf, err := windowstats.NewBuffer("data", f, 100, windowstats.Points)
	require.NoError(t, err)
	exp := &recordingExporter{}
	tr := highRunTrigger(t, buf, 1, "count", WithExporter(exp))

	f.push(0, 6)
	require.NoError(t, buf.Append())
	_, err = tr.Run()
	require.NoError(t, err)

	exp.failNext = errors.New("disk full")
	f.push(1, 7)
	require.NoError(t, buf.Append())
	out, err := tr.Step()
	require.True(t, model.IsKind(err, model.ExportFailed))
	require.True(t, out.Fired)
	require.Equal(t, NoTransition, out.Transition)
	require.Equal(t, []float64{6}, tr.Chain().Values)

	f.push(2, 8)
	require.NoError(t, buf.Append())
	out, err = tr.Step()
	require.NoError(t, err)
	require.Equal(t, Extended, out.Transition)
	require.Equal(t, []float64{7, 8}, out.Added.Values)

	require.Equal(t, [][]float64{{6}}, exp.begun)
	require.Equal(t, [][]float64{{7, 8}}, exp.extended)
	require.Equal(t, []float64{6, 7, 8}, tr.Chain().Values)
	require.Equal(t, 3, out.ChainLength)
}

func TestResetDropsChain(t *testing.T) {
	buf := bufferOf(t, 100, []float64{6, 7})
	tr := highRunTrigger(t, buf, 2, "count")
	_, err := tr.Run()
	require.NoError(t, err)
	require.True(t, tr.ChainOpen())

	tr.Reset()
	require.False(t, tr.ChainOpen())
	require.Zero(t, tr.Current().Len())
}

func TestNewValidation(t *testing.T) {
	buf := bufferOf(t, 100, nil)
	fn := mustFunc(t, ConsistentlyIncreasing, nil)

	_, err := New("x", nil, 1, "count", fn)
	require.True(t, model.IsKind(err, model.ConfigurationInvalid))
	_, err = New("x", buf, 1, "count", nil)
	require.True(t, model.IsKind(err, model.ConfigurationInvalid))
	_, err = New("x", buf, 0, "count", fn)
	require.True(t, model.IsKind(err, model.ConfigurationInvalid))

	tr, err := New("x", buf, 5, "", fn, WithSource("Data"))
	require.NoError(t, err)
	require.Equal(t, "ms", tr.WindowType())
	require.Equal(t, "Data", tr.Source())
	require.True(t, tr.Active())
}
