package analytics

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"spc_monitor/internal/model"
	"spc_monitor/internal/trigger"
	"spc_monitor/internal/windowstats"
)

// Trigger source selectors used by saved sessions.
const (
	SourceData    = "Data"
	SourceCentral = "CentralLocationStatistic"
	SourceSpread  = "SpreadStatistic"
)

type TriggerState struct {
	Trigger *trigger.Trigger
	Plots   *trigger.PlotCollection
}

type Reading struct {
	Buffer string `json:"buffer"`
	model.Sample
	Length int `json:"length"`
}

type TriggerReading struct {
	Name        string `json:"name"`
	Active      bool   `json:"active"`
	Fired       bool   `json:"fired"`
	Skipped     bool   `json:"skipped,omitempty"`
	Transition  string `json:"transition"`
	ChainID     string `json:"chain_id,omitempty"`
	ChainLength int    `json:"chain_length"`
	Plots       int    `json:"plots"`
}

// Snapshot is the immutable result of one tick, safe to hand to other goroutines.
type Snapshot struct {
	Tick     uint64             `json:"tick"`
	At       time.Time          `json:"at"`
	Data     *Reading           `json:"data,omitempty"`
	Central  *Reading           `json:"central,omitempty"`
	Spread   *Reading           `json:"spread,omitempty"`
	Triggers []TriggerReading   `json:"triggers"`
	Events   []model.ChainEvent `json:"events,omitempty"`
	Errors   []string           `json:"errors,omitempty"`

	Err error `json:"-"`
}

// Analyzer owns the buffers and triggers of a session and advances them one
// tick at a time. Tick and the mutators must be called from a single goroutine;
// Latest may be called from anywhere.
type Analyzer struct {
	data     *windowstats.Buffer
	central  *StatBuffer
	spread   *StatBuffer
	triggers []*TriggerState
	log      *slog.Logger
	now      func() time.Time
	ticks    uint64

	mu     sync.RWMutex
	latest Snapshot
}

func NewAnalyzer(log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{log: log, now: time.Now}
}

func (a *Analyzer) Data() *windowstats.Buffer { return a.data }
func (a *Analyzer) Central() *StatBuffer      { return a.central }
func (a *Analyzer) Spread() *StatBuffer       { return a.spread }

// SetDataSource replaces the data buffer. Statistics and triggers built on
// the previous buffer are dropped.
func (a *Analyzer) SetDataSource(data *windowstats.Buffer) {
	if a.data == data {
		return
	}
	a.data = data
	a.central, a.spread = nil, nil
	a.triggers = nil
}

func (a *Analyzer) SetStatistic(sb *StatBuffer) error {
	if a.data == nil || sb.Source() != a.data {
		return model.NewConfigError("statistic must be built on the configured data source", "data_name", sb.DataName)
	}
	old := a.central
	if sb.Statistic.Category() == Spread {
		old = a.spread
		a.spread = sb
	} else {
		a.central = sb
	}
	if old != nil {
		a.dropTriggersOn(old.Buffer)
	}
	return nil
}

func (a *Analyzer) ClearStatistics() {
	for _, sb := range []*StatBuffer{a.central, a.spread} {
		if sb != nil {
			a.dropTriggersOn(sb.Buffer)
		}
	}
	a.central, a.spread = nil, nil
}

func (a *Analyzer) dropTriggersOn(buf *windowstats.Buffer) {
	kept := a.triggers[:0]
	for _, ts := range a.triggers {
		if ts.Trigger.Buffer() != buf {
			kept = append(kept, ts)
		}
	}
	a.triggers = kept
}

// SourceBuffer resolves a trigger source selector. Unknown selectors fall back
// to the central location statistic.
func (a *Analyzer) SourceBuffer(selector string) *windowstats.Buffer {
	var sb *StatBuffer
	switch selector {
	case SourceData:
		return a.data
	case SourceSpread:
		sb = a.spread
	default:
		sb = a.central
	}
	if sb == nil {
		return nil
	}
	return sb.Buffer
}

func (a *Analyzer) AddTrigger(t *trigger.Trigger) error {
	if a.TriggerState(t.Name()) != nil {
		return model.NewConfigError("duplicate trigger name", "name", t.Name())
	}
	a.triggers = append(a.triggers, &TriggerState{Trigger: t, Plots: trigger.NewPlotCollection()})
	return nil
}

func (a *Analyzer) RemoveTrigger(name string) bool {
	for i, ts := range a.triggers {
		if ts.Trigger.Name() == name {
			a.triggers = append(a.triggers[:i], a.triggers[i+1:]...)
			return true
		}
	}
	return false
}

func (a *Analyzer) TriggerState(name string) *TriggerState {
	for _, ts := range a.triggers {
		if ts.Trigger.Name() == name {
			return ts
		}
	}
	return nil
}

func (a *Analyzer) Triggers() []*TriggerState {
	return a.triggers
}

// Combine joins two registered triggers and registers the result.
func (a *Analyzer) Combine(first, second string, op trigger.Op) (*trigger.Trigger, error) {
	lhs, rhs := a.TriggerState(first), a.TriggerState(second)
	if lhs == nil || rhs == nil {
		return nil, model.NewConfigError("unknown trigger to combine", "name", [2]string{first, second})
	}
	t, err := trigger.Combine(lhs.Trigger, rhs.Trigger, op)
	if err != nil {
		return nil, err
	}
	if err := a.AddTrigger(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Reset empties every buffer, open chain and retained plot.
func (a *Analyzer) Reset() {
	if a.data != nil {
		a.data.Clear()
	}
	for _, sb := range []*StatBuffer{a.central, a.spread} {
		if sb != nil {
			sb.Clear()
		}
	}
	for _, ts := range a.triggers {
		ts.Trigger.Reset()
		ts.Plots.Clear()
	}
}

// Tick pulls one sample into the data buffer, recomputes the statistics,
// evaluates every trigger and prunes retained plots. A failure in one buffer
// or trigger is recorded and does not stop the others.
func (a *Analyzer) Tick() Snapshot {
	a.ticks++
	snap := Snapshot{Tick: a.ticks, At: a.now()}
	var errs []error

	dataOK := a.data != nil
	if a.data != nil {
		if err := a.data.Append(); err != nil {
			dataOK = false
			errs = append(errs, err)
			a.log.Warn("data source unavailable", "buffer", a.data.Name(), "err", err)
		}
		snap.Data = reading(a.data)
	}

	for _, sb := range []*StatBuffer{a.central, a.spread} {
		if sb == nil {
			continue
		}
		if dataOK {
			if err := sb.Append(); err != nil {
				errs = append(errs, err)
				a.log.Warn("statistic not updated", "buffer", sb.Name(), "err", err)
			}
		}
		r := reading(sb.Buffer)
		if sb.Statistic.Category() == Spread {
			snap.Spread = r
		} else {
			snap.Central = r
		}
	}

	for _, ts := range a.triggers {
		tr := ts.Trigger
		out, err := tr.Step()
		if err != nil {
			errs = append(errs, err)
			a.log.Error("trigger export failed", "trigger", tr.Name(), "err", err)
		}
		if out.Fired {
			ts.Plots.Record(tr)
		}
		if a.data != nil {
			if oldest, ok := a.data.Oldest(); ok {
				ts.Plots.Prune(oldest.Time)
			}
		}
		if ev, ok := out.Event(tr.Name(), snap.At); ok {
			snap.Events = append(snap.Events, ev)
			a.log.Info("trigger chain "+string(ev.Kind), "trigger", tr.Name(), "chain", ev.ChainID, "length", ev.Length)
		}

		snap.Triggers = append(snap.Triggers, TriggerReading{
			Name:        tr.Name(),
			Active:      tr.Active(),
			Fired:       out.Fired,
			Skipped:     out.Skipped,
			Transition:  out.Transition.String(),
			ChainID:     chainID(tr),
			ChainLength: chainLength(tr),
			Plots:       ts.Plots.Len(),
		})
	}

	for _, err := range errs {
		snap.Errors = append(snap.Errors, err.Error())
	}
	snap.Err = errors.Join(errs...)

	a.mu.Lock()
	a.latest = snap
	a.mu.Unlock()

	return snap
}

func (a *Analyzer) Latest() Snapshot {
	a.mu.RLock()
	res := a.latest
	a.mu.RUnlock()
	return res
}

func reading(b *windowstats.Buffer) *Reading {
	r := &Reading{Buffer: b.Name(), Length: b.Len()}
	if latest, ok := b.Latest(); ok {
		r.Sample = latest
	}
	return r
}

func chainID(t *trigger.Trigger) string {
	if c := t.Chain(); c != nil {
		return c.ID
	}
	return ""
}

func chainLength(t *trigger.Trigger) int {
	if c := t.Chain(); c != nil {
		return c.Len()
	}
	return 0
}
