package trigger

import (
	"fmt"
	"strings"

	"spc_monitor/internal/model"
	"spc_monitor/internal/windowstats"
)

type Op string

const (
	Or   Op = "OR"
	And  Op = "AND"
	Nand Op = "NAND"
	Xor  Op = "XOR"
)

func ParseOp(s string) (Op, error) {
	switch op := Op(strings.ToUpper(s)); op {
	case Or, And, Nand, Xor:
		return op, nil
	}
	return "", model.NewConfigError(`how must be "OR", "AND", "NAND" or "XOR"`, "how", s)
}

// Combine builds a trigger whose predicate joins the predicates of first and
// second. Both must watch the same buffer with the same window.
func Combine(first, second *Trigger, op Op) (*Trigger, error) {
	if first.windowSize != second.windowSize {
		return nil, model.NewConfigError("cannot combine mismatched sized triggers", "window_size",
			[2]float64{first.windowSize, second.windowSize})
	}
	if first.buffer != second.buffer {
		return nil, model.NewConfigError("buffers for the two combined triggers must match", "source_buffer_name",
			[2]string{first.buffer.Name(), second.buffer.Name()})
	}
	if first.windowType != second.windowType {
		return nil, model.NewConfigError("window types for the two combined triggers must match", "window_type",
			[2]string{first.windowType, second.windowType})
	}

	a, b := first.fn, second.fn
	var fn Func
	switch op {
	case Or:
		fn = func(src *windowstats.Buffer, w windowstats.Window) bool { return a(src, w) || b(src, w) }
	case And:
		fn = func(src *windowstats.Buffer, w windowstats.Window) bool { return a(src, w) && b(src, w) }
	case Nand:
		fn = func(src *windowstats.Buffer, w windowstats.Window) bool { return !(a(src, w) && b(src, w)) }
	case Xor:
		fn = func(src *windowstats.Buffer, w windowstats.Window) bool { return a(src, w) != b(src, w) }
	default:
		return nil, model.NewConfigError(`how must be "OR", "AND", "NAND" or "XOR"`, "how", string(op))
	}

	return New(fmt.Sprintf("%s_%s_%s", first.name, op, second.name), first.buffer, first.windowSize, first.windowType, fn,
		WithSource(first.source), WithExporter(first.exporter))
}
