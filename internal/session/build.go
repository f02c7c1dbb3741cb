package session

import (
	"fmt"
	"log/slog"

	"spc_monitor/internal/analytics"
	"spc_monitor/internal/model"
	"spc_monitor/internal/source"
	"spc_monitor/internal/trigger"
	"spc_monitor/internal/windowstats"
)

type BuildOptions struct {
	Log      *slog.Logger
	Exporter trigger.Exporter
}

// Build constructs an analyzer from doc, reading the data source from the
// file it names.
func Build(doc *Document, opts BuildOptions) (*analytics.Analyzer, error) {
	var data *windowstats.Buffer
	if ds := doc.DataSource; ds != nil {
		var kwargs source.Options
		if ds.Kwargs != nil {
			kwargs = *ds.Kwargs
		}
		src, err := source.NewFileSource(ds.Filepath, kwargs)
		if err != nil {
			return nil, fmt.Errorf("data source %q: %w", ds.Name, err)
		}
		if data, err = NewDataBuffer(ds, src); err != nil {
			return nil, err
		}
	}
	return BuildWith(doc, data, opts)
}

func NewDataBuffer(ds *DataSource, src windowstats.Source) (*windowstats.Buffer, error) {
	capacity, ct, err := capacityOf(ds.Capacity, ds.CapacityType)
	if err != nil {
		return nil, fmt.Errorf("data source %q: %w", ds.Name, err)
	}
	buf, err := windowstats.NewBuffer(ds.Name, src, capacity, ct, windowstats.WithTimeScale(ds.TimeScale))
	if err != nil {
		return nil, fmt.Errorf("data source %q: %w", ds.Name, err)
	}
	return buf, nil
}

// BuildWith constructs an analyzer from doc around an existing data buffer.
func BuildWith(doc *Document, data *windowstats.Buffer, opts BuildOptions) (*analytics.Analyzer, error) {
	a := analytics.NewAnalyzer(opts.Log)
	if data != nil {
		a.SetDataSource(data)
	}

	slots := []struct {
		key  string
		cfg  *Statistic
		want analytics.Category
	}{
		{analytics.SourceCentral, doc.CentralLocationStatistic, analytics.CentralLocation},
		{analytics.SourceSpread, doc.SpreadStatistic, analytics.Spread},
	}
	for _, slot := range slots {
		if slot.cfg == nil {
			continue
		}
		sb, err := newStatBuffer(slot.cfg, data, slot.want)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", slot.key, slot.cfg.Name, err)
		}
		if err := a.SetStatistic(sb); err != nil {
			return nil, fmt.Errorf("%s %q: %w", slot.key, slot.cfg.Name, err)
		}
	}

	for _, cfg := range doc.Triggers {
		if err := addTrigger(a, cfg, opts.Exporter); err != nil {
			return nil, fmt.Errorf("trigger %q: %w", cfg.Name, err)
		}
	}
	return a, nil
}

func newStatBuffer(cfg *Statistic, data *windowstats.Buffer, want analytics.Category) (*analytics.StatBuffer, error) {
	if data == nil {
		return nil, model.NewConfigError("statistic requires a data source", "DataSource", nil)
	}
	stat, err := analytics.ParseStatistic(cfg.StatFunctionName)
	if err != nil {
		return nil, err
	}
	if stat.Category() != want {
		return nil, model.NewConfigError("statistic does not belong in this slot", "stat_function_name", cfg.StatFunctionName)
	}
	capacity, ct, err := capacityOf(cfg.Capacity, cfg.CapacityType)
	if err != nil {
		return nil, err
	}
	return analytics.NewStatBuffer(cfg.Name, data, stat, cfg.StatFunctionKwargs, capacity, ct)
}

func addTrigger(a *analytics.Analyzer, cfg Trigger, exp trigger.Exporter) error {
	if c := cfg.Combine; c != nil {
		op, err := trigger.ParseOp(c.How)
		if err != nil {
			return err
		}
		t, err := a.Combine(c.First, c.Second, op)
		if err != nil {
			return err
		}
		if !cfg.IsActive() {
			t.Deactivate()
		}
		return nil
	}

	buf := a.SourceBuffer(cfg.Source)
	if buf == nil {
		return model.NewConfigError("trigger source is not configured", "source", cfg.Source)
	}
	kind, err := trigger.ParseKind(cfg.TriggerFunction)
	if err != nil {
		return err
	}
	fn, err := trigger.NewFunc(kind, cfg.TriggerKwargs)
	if err != nil {
		return err
	}

	opts := []trigger.Option{trigger.WithSource(cfg.Source), trigger.WithActive(cfg.IsActive())}
	if exp != nil {
		opts = append(opts, trigger.WithExporter(exp))
	}
	t, err := trigger.New(cfg.Name, buf, cfg.WindowSize, cfg.WindowType, fn, opts...)
	if err != nil {
		return err
	}
	return a.AddTrigger(t)
}

func capacityOf(capacity float64, capacityType string) (float64, windowstats.CapacityType, error) {
	if capacity == 0 {
		capacity = windowstats.DefaultCapacity
	}
	if capacityType == "" {
		capacityType = string(windowstats.Milliseconds)
	}
	ct, err := windowstats.ParseCapacityType(capacityType)
	return capacity, ct, err
}
