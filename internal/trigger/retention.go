package trigger

import "time"

// Plot is a view of a chain kept for overlay drawing.
type Plot struct {
	Trigger  string      `json:"trigger"`
	Times    []float64   `json:"time"`
	Values   []float64   `json:"data"`
	Stamps   []time.Time `json:"timestamps"`
	Earliest float64     `json:"earliest_time"`
}

// PlotCollection keeps the chains of one trigger that are still in view,
// ordered by earliest time.
type PlotCollection struct {
	plots []Plot
}

func NewPlotCollection() *PlotCollection {
	return &PlotCollection{}
}

// Record stores the trigger's open chain, updating the newest plot in place
// when it belongs to the same chain.
func (p *PlotCollection) Record(t *Trigger) {
	if !t.Active() || t.chain == nil {
		return
	}
	w := t.chain.Window()
	earliest := t.chain.Earliest()

	if n := len(p.plots); n > 0 && p.plots[n-1].Earliest == earliest {
		last := &p.plots[n-1]
		last.Times, last.Values, last.Stamps = w.Times, w.Values, w.Stamps
		return
	}
	p.plots = append(p.plots, Plot{
		Trigger:  t.name,
		Times:    w.Times,
		Values:   w.Values,
		Stamps:   w.Stamps,
		Earliest: earliest,
	})
}

// Prune drops plots from the front whose earliest time is before cutoff.
func (p *PlotCollection) Prune(cutoff float64) {
	drop := 0
	for drop < len(p.plots) && p.plots[drop].Earliest < cutoff {
		drop++
	}
	if drop > 0 {
		p.plots = p.plots[drop:]
	}
}

func (p *PlotCollection) Len() int {
	return len(p.plots)
}

func (p *PlotCollection) Plots() []Plot {
	out := make([]Plot, len(p.plots))
	copy(out, p.plots)
	return out
}

func (p *PlotCollection) Clear() {
	p.plots = nil
}
