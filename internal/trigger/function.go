package trigger

import (
	"math"
	"slices"

	"spc_monitor/internal/model"
	"spc_monitor/internal/windowstats"
)

type Kind int

const (
	HighRun Kind = iota
	ConsistentlyIncreasing
	ConsistentlyDecreasing
	StdDevAwayFromMean
)

var kindNames = [...]string{
	HighRun:                "High Run",
	ConsistentlyIncreasing: "Consistently Increasing",
	ConsistentlyDecreasing: "Consistently Decreasing",
	StdDevAwayFromMean:     "Std Dev Away From Mean",
}

func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, model.NewConfigError("unknown trigger function", "trigger_function", name)
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Func decides whether a trigger fires for its current window. The source
// buffer is passed for predicates that need a baseline beyond the window.
type Func func(source *windowstats.Buffer, window windowstats.Window) bool

// Params are the bound keyword parameters of a trigger function.
type Params map[string]float64

const (
	ParamThreshold    = "threshold"
	ParamStdDevFactor = "std_dev_factor"
)

var allowedParams = map[Kind][]string{
	HighRun:            {ParamThreshold},
	StdDevAwayFromMean: {ParamStdDevFactor},
}

// NewFunc binds params to the predicate of the given kind once, at
// configuration time.
func NewFunc(kind Kind, params Params) (Func, error) {
	allowed := allowedParams[kind]
	for key := range params {
		if !slices.Contains(allowed, key) {
			return nil, model.NewConfigError("unsupported parameter for "+kind.String(), key, params[key])
		}
	}

	switch kind {
	case HighRun:
		threshold, ok := params[ParamThreshold]
		if !ok {
			return nil, model.NewConfigError("High Run requires a threshold", ParamThreshold, nil)
		}
		return func(_ *windowstats.Buffer, w windowstats.Window) bool {
			return highRun(w.Values, threshold)
		}, nil
	case ConsistentlyIncreasing:
		return func(_ *windowstats.Buffer, w windowstats.Window) bool {
			return monotonic(w.Values, func(a, b float64) bool { return a < b })
		}, nil
	case ConsistentlyDecreasing:
		return func(_ *windowstats.Buffer, w windowstats.Window) bool {
			return monotonic(w.Values, func(a, b float64) bool { return a > b })
		}, nil
	case StdDevAwayFromMean:
		factor, ok := params[ParamStdDevFactor]
		if !ok {
			factor = 1
		}
		return func(src *windowstats.Buffer, w windowstats.Window) bool {
			return stdDevAway(src.All().Values, w.Values, factor)
		}, nil
	}
	return nil, model.NewConfigError("unknown trigger function", "trigger_function", int(kind))
}

func highRun(values []float64, threshold float64) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if math.Abs(v) <= threshold {
			return false
		}
	}
	return true
}

// monotonic compares absolute values pairwise; fewer than two values never fire.
func monotonic(values []float64, ordered func(a, b float64) bool) bool {
	if len(values) < 2 {
		return false
	}
	for i := 1; i < len(values); i++ {
		if !ordered(math.Abs(values[i-1]), math.Abs(values[i])) {
			return false
		}
	}
	return true
}

// stdDevAway uses the whole history as the population baseline while testing
// only the window.
func stdDevAway(history, window []float64, factor float64) bool {
	mean := windowstats.Average(history)
	std := windowstats.StdDev(history)
	for _, v := range window {
		if math.Abs(windowstats.ZScore(v, mean, std)) > factor {
			return true
		}
	}
	return false
}
