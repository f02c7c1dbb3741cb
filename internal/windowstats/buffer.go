package windowstats

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"spc_monitor/internal/model"
)

type CapacityType string

const (
	Points       CapacityType = "points"
	Milliseconds CapacityType = "ms"
	Seconds      CapacityType = "s"
)

const (
	DefaultCapacity = 10000

	// Raw time divisors yielding seconds since the epoch.
	MillisecondScale = 1000.0
	MicrosecondScale = 1000000.0
)

func ParseCapacityType(s string) (CapacityType, error) {
	switch c := CapacityType(s); c {
	case Points, Milliseconds, Seconds:
		return c, nil
	}
	return "", model.NewConfigError("unknown capacity type", "capacity_type", s)
}

func (c CapacityType) IsDuration() bool {
	return IsDurationUnit(string(c))
}

// IsDurationUnit reports whether a size or window unit selects duration windowing.
// Anything other than "ms" or "s" (including "count") selects point windowing.
func IsDurationUnit(unit string) bool {
	return unit == string(Milliseconds) || unit == string(Seconds)
}

// Source produces the next sample for a buffer.
type Source interface {
	Next() (t float64, v float64, err error)
}

type SourceFunc func() (float64, float64, error)

func (f SourceFunc) Next() (float64, float64, error) {
	return f()
}

// Window is a copied slice of a buffer's trailing history. The three sequences
// always have the same length and are ordered oldest first.
type Window struct {
	Times  []float64
	Values []float64
	Stamps []time.Time
}

func (w Window) Len() int {
	return len(w.Times)
}

func (w Window) Samples() []model.Sample {
	out := make([]model.Sample, len(w.Times))
	for i := range w.Times {
		out[i] = model.Sample{Time: w.Times[i], Value: w.Values[i], Stamp: w.Stamps[i]}
	}
	return out
}

// Buffer is a bounded, append-only history of samples pulled from a Source.
// It is not safe for concurrent use; a single tick loop owns it.
type Buffer struct {
	name         string
	capacity     float64
	capacityType CapacityType
	scale        float64
	source       Source

	times  []float64
	values []float64
	stamps []time.Time
}

type Option func(*Buffer)

// WithTimeScale sets the divisor turning raw times into epoch seconds for
// point-capacity buffers. Duration buffers derive it from their capacity type.
func WithTimeScale(scale float64) Option {
	return func(b *Buffer) {
		if b.capacityType == Points && scale > 0 {
			b.scale = scale
		}
	}
}

func NewBuffer(name string, source Source, capacity float64, capacityType CapacityType, opts ...Option) (*Buffer, error) {
	if source == nil {
		return nil, model.NewConfigError(fmt.Sprintf("buffer %q has no source", name), "source", nil)
	}
	if _, err := ParseCapacityType(string(capacityType)); err != nil {
		return nil, err
	}
	if capacity <= 0 || (capacityType == Points && capacity < 1) {
		return nil, model.NewConfigError(fmt.Sprintf("buffer %q capacity must be positive", name), "capacity", capacity)
	}

	b := &Buffer{
		name:         name,
		capacity:     capacity,
		capacityType: capacityType,
		scale:        MillisecondScale,
		source:       source,
	}
	if capacityType == Seconds {
		b.scale = MicrosecondScale
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Buffer) Name() string {
	return b.name
}

func (b *Buffer) Capacity() float64 {
	return b.capacity
}

func (b *Buffer) CapacityType() CapacityType {
	return b.capacityType
}

// Scale is the divisor turning raw sample times into epoch seconds.
func (b *Buffer) Scale() float64 {
	return b.scale
}

func (b *Buffer) Len() int {
	return len(b.times)
}

// Append pulls one sample from the source and appends it, evicting from the
// front so the capacity bound holds afterwards. A failing source leaves
// the buffer untouched.
func (b *Buffer) Append() error {
	t, v, err := b.source.Next()
	if err != nil {
		return model.NewSourceError(b.name, err)
	}

	b.times = append(b.times, t)
	b.values = append(b.values, v)
	b.stamps = append(b.stamps, b.stampOf(t))
	b.evict()
	return nil
}

func (b *Buffer) stampOf(t float64) time.Time {
	secs := t / b.scale
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*1e9))
}

func (b *Buffer) evict() {
	n := len(b.times)
	drop := 0
	if b.capacityType == Points {
		if over := n - int(b.capacity); over > 0 {
			drop = over
		}
	} else {
		last := b.times[n-1]
		for drop < n-1 && last-b.times[drop] >= b.capacity {
			drop++
		}
	}
	if drop == 0 {
		return
	}
	b.times = b.times[drop:]
	b.values = b.values[drop:]
	b.stamps = b.stamps[drop:]
}

// Span is the time between the oldest and newest sample, 0 with fewer than two.
func (b *Buffer) Span() float64 {
	if len(b.times) < 2 {
		return 0
	}
	return b.times[len(b.times)-1] - b.times[0]
}

func (b *Buffer) Latest() (model.Sample, bool) {
	n := len(b.times)
	if n == 0 {
		return model.Sample{}, false
	}
	return model.Sample{Time: b.times[n-1], Value: b.values[n-1], Stamp: b.stamps[n-1]}, true
}

func (b *Buffer) Oldest() (model.Sample, bool) {
	if len(b.times) == 0 {
		return model.Sample{}, false
	}
	return model.Sample{Time: b.times[0], Value: b.values[0], Stamp: b.stamps[0]}, true
}

func (b *Buffer) Clear() {
	b.times = nil
	b.values = nil
	b.stamps = nil
}

// Tail returns the last n samples taken every step positions back from the
// newest, oldest first. With fewer than n*step samples it returns everything.
func (b *Buffer) Tail(n, step int) Window {
	return Window{
		Times:  tail(b.times, n, step),
		Values: tail(b.values, n, step),
		Stamps: tail(b.stamps, n, step),
	}
}

func (b *Buffer) TailValues(n, step int) []float64 {
	return tail(b.values, n, step)
}

func (b *Buffer) TailTimes(n, step int) []float64 {
	return tail(b.times, n, step)
}

func (b *Buffer) TailStamps(n, step int) []time.Time {
	return tail(b.stamps, n, step)
}

// All returns a copy of the whole buffer.
func (b *Buffer) All() Window {
	return b.Tail(len(b.times), 1)
}

// CountWithin counts the trailing samples whose time is at least latest-d.
func (b *Buffer) CountWithin(d float64) int {
	n := len(b.times)
	if n == 0 {
		return 0
	}
	cutoff := b.times[n-1] - d
	k := 0
	for i := n - 1; i >= 0 && b.times[i] >= cutoff; i-- {
		k++
	}
	return k
}

func (b *Buffer) TailByDuration(d float64) Window {
	return b.Tail(b.CountWithin(d), 1)
}

// Since returns the samples strictly newer than t.
func (b *Buffer) Since(t float64) Window {
	idx := sort.Search(len(b.times), func(i int) bool { return b.times[i] > t })
	return b.Tail(len(b.times)-idx, 1)
}

func tail[T any](s []T, n, step int) []T {
	if step < 1 {
		step = 1
	}
	if len(s) < n*step {
		return slices.Clone(s)
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = s[len(s)-1-i*step]
	}
	return out
}
