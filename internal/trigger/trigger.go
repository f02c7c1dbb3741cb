package trigger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"spc_monitor/internal/model"
	"spc_monitor/internal/windowstats"
)

// Exporter persists chains as they open and grow. Begin must record the
// individual output it created on the chain.
type Exporter interface {
	Begin(c *Chain) error
	Extend(c *Chain, added windowstats.Window) error
}

// Chain is the contiguous run of samples covered by consecutive firings.
type Chain struct {
	ID      string
	Trigger string
	Times   []float64
	Values  []float64
	Stamps  []time.Time

	// Output is the individual export file of this chain, if any.
	Output string
}

func (c *Chain) Len() int {
	return len(c.Times)
}

func (c *Chain) Earliest() float64 {
	return c.Times[0]
}

func (c *Chain) Window() windowstats.Window {
	n := len(c.Times)
	return windowstats.Window{Times: c.Times[:n:n], Values: c.Values[:n:n], Stamps: c.Stamps[:n:n]}
}

func (c *Chain) add(w windowstats.Window) {
	c.Times = append(c.Times, w.Times...)
	c.Values = append(c.Values, w.Values...)
	c.Stamps = append(c.Stamps, w.Stamps...)
}

type Transition int

const (
	NoTransition Transition = iota
	Started
	Extended
	Ended
)

func (t Transition) String() string {
	switch t {
	case Started:
		return string(model.ChainStarted)
	case Extended:
		return string(model.ChainExtended)
	case Ended:
		return string(model.ChainEnded)
	}
	return "none"
}

// Outcome reports one evaluation step.
type Outcome struct {
	Fired bool
	// Skipped is set when the source does not yet span a duration window.
	Skipped    bool
	Transition Transition
	Added      windowstats.Window

	ChainID     string
	ChainLength int
	Earliest    float64
}

// Event converts a chain transition into a model.ChainEvent.
func (o Outcome) Event(trigger string, at time.Time) (model.ChainEvent, bool) {
	if o.Transition == NoTransition {
		return model.ChainEvent{}, false
	}
	return model.ChainEvent{
		ChainID:  o.ChainID,
		Trigger:  trigger,
		Kind:     model.ChainEventKind(o.Transition.String()),
		Earliest: o.Earliest,
		Length:   o.ChainLength,
		Rows:     o.Added.Samples(),
		At:       at,
	}, true
}

type Trigger struct {
	name       string
	source     string
	buffer     *windowstats.Buffer
	windowSize float64
	windowType string
	fn         Func
	active     bool
	exporter   Exporter

	current windowstats.Window
	chain   *Chain
}

type Option func(*Trigger)

// WithSource records which configured buffer (Data, CentralLocationStatistic,
// SpreadStatistic) the trigger watches.
func WithSource(selector string) Option {
	return func(t *Trigger) { t.source = selector }
}

func WithExporter(e Exporter) Option {
	return func(t *Trigger) { t.exporter = e }
}

func WithActive(active bool) Option {
	return func(t *Trigger) { t.active = active }
}

func New(name string, buffer *windowstats.Buffer, windowSize float64, windowType string, fn Func, opts ...Option) (*Trigger, error) {
	if buffer == nil {
		return nil, model.NewConfigError(fmt.Sprintf("trigger %q has no source buffer", name), "source_buffer_name", nil)
	}
	if fn == nil {
		return nil, model.NewConfigError(fmt.Sprintf("trigger %q has no function", name), "trigger_function", nil)
	}
	if windowSize <= 0 {
		return nil, model.NewConfigError(fmt.Sprintf("trigger %q window must be positive", name), "window_size", windowSize)
	}
	if windowType == "" {
		windowType = string(windowstats.Milliseconds)
	}

	t := &Trigger{
		name:       name,
		buffer:     buffer,
		windowSize: windowSize,
		windowType: windowType,
		fn:         fn,
		active:     true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Trigger) Name() string                { return t.name }
func (t *Trigger) Source() string              { return t.source }
func (t *Trigger) Buffer() *windowstats.Buffer { return t.buffer }
func (t *Trigger) WindowSize() float64         { return t.windowSize }
func (t *Trigger) WindowType() string          { return t.windowType }
func (t *Trigger) Active() bool                { return t.active }
func (t *Trigger) Activate()                   { t.active = true }
func (t *Trigger) Deactivate()                 { t.active = false }

// Current is the window evaluated by the latest step.
func (t *Trigger) Current() windowstats.Window {
	return t.current
}

// Chain returns the open chain, nil when idle.
func (t *Trigger) Chain() *Chain {
	return t.chain
}

func (t *Trigger) ChainOpen() bool {
	return t.chain != nil
}

// Reset forgets the open chain without touching exported files.
func (t *Trigger) Reset() {
	t.chain = nil
	t.current = windowstats.Window{}
}

// Run evaluates the trigger once and returns the predicate result.
func (t *Trigger) Run() (bool, error) {
	out, err := t.Step()
	return out.Fired, err
}

// Step evaluates the predicate over the current window and advances the chain:
// idle->open exports the whole window, open->open exports only samples newer
// than the chain, open->idle drops the chain.
func (t *Trigger) Step() (Outcome, error) {
	if !t.active {
		return Outcome{}, nil
	}
	if windowstats.IsDurationUnit(t.windowType) && t.buffer.Span() < t.windowSize {
		return Outcome{Skipped: true}, nil
	}

	t.current = t.window()
	out := Outcome{Fired: t.fn(t.buffer, t.current)}

	switch {
	case out.Fired && t.chain == nil:
		return t.start(out)
	case out.Fired:
		return t.extend(out)
	case t.chain != nil:
		out.Transition = Ended
		out.ChainID = t.chain.ID
		out.ChainLength = t.chain.Len()
		out.Earliest = t.chain.Earliest()
		t.chain = nil
	}
	return out, nil
}

func (t *Trigger) window() windowstats.Window {
	if windowstats.IsDurationUnit(t.windowType) {
		return t.buffer.TailByDuration(t.windowSize)
	}
	return t.buffer.Tail(int(t.windowSize), 1)
}

func (t *Trigger) start(out Outcome) (Outcome, error) {
	if t.current.Len() == 0 {
		return out, nil
	}
	c := &Chain{ID: uuid.NewString(), Trigger: t.name}
	c.add(t.current)

	if t.exporter != nil {
		if err := t.exporter.Begin(c); err != nil {
			return out, model.NewExportError(t.name, err)
		}
	}
	t.chain = c

	out.Transition = Started
	out.Added = c.Window()
	out.ChainID = c.ID
	out.ChainLength = c.Len()
	out.Earliest = c.Earliest()
	return out, nil
}

// extend grows the chain only once the new samples are exported, so a failed
// export is retried with the same samples on the next firing.
func (t *Trigger) extend(out Outcome) (Outcome, error) {
	c := t.chain
	added := t.buffer.Since(c.Times[c.Len()-1])

	out.ChainID = c.ID
	if t.exporter != nil && added.Len() > 0 {
		if err := t.exporter.Extend(c, added); err != nil {
			out.ChainLength = c.Len()
			out.Earliest = c.Earliest()
			return out, model.NewExportError(t.name, err)
		}
	}
	c.add(added)

	out.Transition = Extended
	out.Added = added
	out.ChainLength = c.Len()
	out.Earliest = c.Earliest()
	return out, nil
}
