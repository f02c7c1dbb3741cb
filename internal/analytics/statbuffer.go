package analytics

import (
	"errors"
	"fmt"

	"spc_monitor/internal/model"
	"spc_monitor/internal/windowstats"
)

var errNoSourceData = errors.New("source buffer is empty")

// StatBuffer is a buffer whose samples are a statistic of another buffer,
// recomputed once per tick at the source's latest time.
type StatBuffer struct {
	*windowstats.Buffer

	Statistic Statistic
	Params    Params
	DataName  string

	data *windowstats.Buffer
}

type statSource struct {
	data   *windowstats.Buffer
	stat   Statistic
	params Params
}

func (s statSource) Next() (float64, float64, error) {
	latest, ok := s.data.Latest()
	if !ok {
		return 0, 0, fmt.Errorf("%s: %w", s.data.Name(), errNoSourceData)
	}
	return latest.Time, s.stat.Compute(s.data, s.params), nil
}

func NewStatBuffer(name string, data *windowstats.Buffer, stat Statistic, params Params,
	capacity float64, capacityType windowstats.CapacityType, opts ...windowstats.Option) (*StatBuffer, error) {
	if data == nil {
		return nil, model.NewConfigError(fmt.Sprintf("statistic %q has no data buffer", name), "data_buffer", nil)
	}
	params, err := params.validate(stat)
	if err != nil {
		return nil, err
	}

	// Samples carry the data buffer's times, so point buffers share its scale.
	opts = append([]windowstats.Option{windowstats.WithTimeScale(data.Scale())}, opts...)
	buf, err := windowstats.NewBuffer(name, statSource{data: data, stat: stat, params: params}, capacity, capacityType, opts...)
	if err != nil {
		return nil, err
	}
	return &StatBuffer{
		Buffer:    buf,
		Statistic: stat,
		Params:    params,
		DataName:  data.Name(),
		data:      data,
	}, nil
}

// NewStatBufferByName resolves the statistic name at construction time.
func NewStatBufferByName(name string, data *windowstats.Buffer, statName string, params Params,
	capacity float64, capacityType windowstats.CapacityType, opts ...windowstats.Option) (*StatBuffer, error) {
	stat, err := ParseStatistic(statName)
	if err != nil {
		return nil, err
	}
	return NewStatBuffer(name, data, stat, params, capacity, capacityType, opts...)
}

func (s *StatBuffer) Source() *windowstats.Buffer {
	return s.data
}
