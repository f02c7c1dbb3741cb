package analytics

import (
	"spc_monitor/internal/model"
	"spc_monitor/internal/windowstats"
)

type Statistic int

const (
	MovingAverage Statistic = iota
	ExponentialMovingAverage
	StdDev
	Variance
)

type Category int

const (
	CentralLocation Category = iota
	Spread
)

const DefaultAlpha = 0.01

var statisticNames = [...]string{
	MovingAverage:            "simple_moving_average",
	ExponentialMovingAverage: "exponentially_weighed_moving_average",
	StdDev:                   "std_dev",
	Variance:                 "variance",
}

func ParseStatistic(name string) (Statistic, error) {
	for i, n := range statisticNames {
		if n == name {
			return Statistic(i), nil
		}
	}
	return 0, model.NewConfigError("unknown statistic", "stat_function_name", name)
}

func (s Statistic) String() string {
	if s < 0 || int(s) >= len(statisticNames) {
		return "unknown"
	}
	return statisticNames[s]
}

func (s Statistic) Category() Category {
	if s == StdDev || s == Variance {
		return Spread
	}
	return CentralLocation
}

// Params binds a statistic to its window. SizeType "ms" or "s" windows by
// duration, anything else by point count.
type Params struct {
	Size     float64 `yaml:"size" json:"size"`
	SizeType string  `yaml:"size_type" json:"size_type"`
	Alpha    float64 `yaml:"alpha,omitempty" json:"alpha,omitempty"`
}

func (p Params) validate(s Statistic) (Params, error) {
	if p.Size <= 0 {
		return p, model.NewConfigError("statistic size must be positive", "size", p.Size)
	}
	if p.SizeType == "" {
		p.SizeType = string(windowstats.Milliseconds)
	}
	if s == ExponentialMovingAverage {
		if p.Alpha == 0 {
			p.Alpha = DefaultAlpha
		}
		if p.Alpha < 0 || p.Alpha > 1 {
			return p, model.NewConfigError("smoothing factor must be in (0, 1]", "alpha", p.Alpha)
		}
	}
	return p, nil
}

// Compute evaluates the statistic over the windowed slice of data. When the
// window asks for more history than exists, all available data is used.
func (s Statistic) Compute(data *windowstats.Buffer, p Params) float64 {
	values := windowValues(data, p)
	switch s {
	case ExponentialMovingAverage:
		return windowstats.EWMA(values, p.Alpha)
	case StdDev:
		return windowstats.StdDev(values)
	case Variance:
		return windowstats.Variance(values)
	default:
		return windowstats.Average(values)
	}
}

func windowValues(data *windowstats.Buffer, p Params) []float64 {
	if data.Len() == 1 {
		return data.TailValues(1, 1)
	}
	if windowstats.IsDurationUnit(p.SizeType) {
		return data.TailByDuration(p.Size).Values
	}
	return data.TailValues(int(p.Size), 1)
}
