package trigger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"spc_monitor/internal/model"
	"spc_monitor/internal/windowstats"
)

func constTrigger(t *testing.T, name string, buf *windowstats.Buffer, window float64, windowType string, result bool) *Trigger {
	t.Helper()
	tr, err := New(name, buf, window, windowType, func(*windowstats.Buffer, windowstats.Window) bool { return result })
	require.NoError(t, err)
	return tr
}

func TestCombineMismatchFailsAtCombination(t *testing.T) {
	buf := bufferOf(t, 100, []float64{1, 2, 3})
	other := bufferOf(t, 100, []float64{1, 2, 3})

	_, err := Combine(constTrigger(t, "a", buf, 2, "count", true), constTrigger(t, "b", buf, 3, "count", true), And)
	require.True(t, model.IsKind(err, model.ConfigurationInvalid))

	_, err = Combine(constTrigger(t, "a", buf, 2, "count", true), constTrigger(t, "b", other, 2, "count", true), And)
	require.True(t, model.IsKind(err, model.ConfigurationInvalid))

	_, err = Combine(constTrigger(t, "a", buf, 2, "count", true), constTrigger(t, "b", buf, 2, "ms", true), And)
	require.True(t, model.IsKind(err, model.ConfigurationInvalid))

	_, err = Combine(constTrigger(t, "a", buf, 2, "count", true), constTrigger(t, "b", buf, 2, "count", true), Op("IMPLIES"))
	require.True(t, model.IsKind(err, model.ConfigurationInvalid))
}

func TestCombineTruthTables(t *testing.T) {
	buf := bufferOf(t, 100, []float64{1, 2, 3})
	cases := []struct {
		op   Op
		want [4]bool // FF, FT, TF, TT
	}{
		{Or, [4]bool{false, true, true, true}},
		{And, [4]bool{false, false, false, true}},
		{Nand, [4]bool{true, true, true, false}},
		{Xor, [4]bool{false, true, true, false}},
	}

	for _, tc := range cases {
		t.Run(string(tc.op), func(t *testing.T) {
			for i, pair := range [4][2]bool{{false, false}, {false, true}, {true, false}, {true, true}} {
				c, err := Combine(constTrigger(t, "a", buf, 2, "count", pair[0]),
					constTrigger(t, "b", buf, 2, "count", pair[1]), tc.op)
				require.NoError(t, err)
				fired, err := c.Run()
				require.NoError(t, err)
				require.Equal(t, tc.want[i], fired, "inputs %v", pair)
			}
		})
	}
}

func TestCombinedTriggerInheritsFirst(t *testing.T) {
	buf := bufferOf(t, 100, []float64{6, 7, 8})
	exp := &recordingExporter{}
	a, err := New("high", buf, 3, "count", mustFunc(t, HighRun, Params{ParamThreshold: 5}),
		WithSource("CentralLocationStatistic"), WithExporter(exp))
	require.NoError(t, err)
	b, err := New("rising", buf, 3, "count", mustFunc(t, ConsistentlyIncreasing, nil))
	require.NoError(t, err)

	c, err := Combine(a, b, And)
	require.NoError(t, err)
	require.Equal(t, "high_AND_rising", c.Name())
	require.Equal(t, "CentralLocationStatistic", c.Source())
	require.Equal(t, 3.0, c.WindowSize())

	fired, err := c.Run()
	require.NoError(t, err)
	require.True(t, fired)
	require.Len(t, exp.begun, 1)

	op, err := ParseOp("xor")
	require.NoError(t, err)
	require.Equal(t, Xor, op)
}
