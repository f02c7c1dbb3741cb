package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"

	"spc_monitor/internal/analytics"
	"spc_monitor/internal/model"
	"spc_monitor/internal/source"
	"spc_monitor/internal/trigger"
)

const DefaultRefreshInterval = 100 * time.Millisecond

// Document is the saved state of a session. Every key is optional.
type Document struct {
	DataSource               *DataSource `yaml:"DataSource,omitempty" json:"DataSource,omitempty"`
	CentralLocationStatistic *Statistic  `yaml:"CentralLocationStatistic,omitempty" json:"CentralLocationStatistic,omitempty"`
	SpreadStatistic          *Statistic  `yaml:"SpreadStatistic,omitempty" json:"SpreadStatistic,omitempty"`
	Triggers                 []Trigger   `yaml:"Triggers,omitempty" json:"Triggers,omitempty"`
	Settings                 *Settings   `yaml:"Settings,omitempty" json:"Settings,omitempty"`
}

type DataSource struct {
	Name         string          `yaml:"name" json:"name"`
	Filepath     string          `yaml:"filepath" json:"filepath"`
	Capacity     float64         `yaml:"capacity" json:"capacity"`
	CapacityType string          `yaml:"capacity_type" json:"capacity_type"`
	Kwargs       *source.Options `yaml:"kwargs,omitempty" json:"kwargs,omitempty"`

	// TimeScale divides raw times into epoch seconds for points buffers,
	// 1000 (milliseconds) when unset.
	TimeScale float64 `yaml:"time_scale,omitempty" json:"time_scale,omitempty"`
}

type Statistic struct {
	Name               string           `yaml:"name" json:"name"`
	Capacity           float64          `yaml:"capacity" json:"capacity"`
	CapacityType       string           `yaml:"capacity_type" json:"capacity_type"`
	StatFunctionName   string           `yaml:"stat_function_name" json:"stat_function_name"`
	StatFunctionKwargs analytics.Params `yaml:"stat_function_kwargs" json:"stat_function_kwargs"`
	Plot               bool             `yaml:"plot" json:"plot"`
	DataName           string           `yaml:"data_name" json:"data_name"`
}

type Trigger struct {
	Name             string         `yaml:"name" json:"name"`
	Source           string         `yaml:"source" json:"source"`
	SourceBufferName string         `yaml:"source_buffer_name" json:"source_buffer_name"`
	WindowSize       float64        `yaml:"window_size" json:"window_size"`
	WindowType       string         `yaml:"window_type" json:"window_type"`
	Active           *bool          `yaml:"active,omitempty" json:"active,omitempty"`
	TriggerFunction  string         `yaml:"trigger_function,omitempty" json:"trigger_function,omitempty"`
	TriggerKwargs    trigger.Params `yaml:"trigger_kwargs,omitempty" json:"trigger_kwargs,omitempty"`

	// Combine declares the trigger as a combination of two earlier triggers.
	Combine *Combine `yaml:"combine,omitempty" json:"combine,omitempty"`
}

type Combine struct {
	How    string `yaml:"how" json:"how"`
	First  string `yaml:"first" json:"first"`
	Second string `yaml:"second" json:"second"`
}

type Settings struct {
	// RefreshInterval is an ISO-8601 duration such as PT0.1S.
	RefreshInterval     string `yaml:"refresh_interval,omitempty" json:"refresh_interval,omitempty"`
	OutputDir           string `yaml:"output_dir,omitempty" json:"output_dir,omitempty"`
	IndividualOutputDir string `yaml:"individual_output_dir,omitempty" json:"individual_output_dir,omitempty"`
	CombinedFileName    string `yaml:"combined_file_name,omitempty" json:"combined_file_name,omitempty"`
}

func (t Trigger) IsActive() bool {
	return t.Active == nil || *t.Active
}

func (d *Document) RefreshInterval() (time.Duration, error) {
	if d.Settings == nil || d.Settings.RefreshInterval == "" {
		return DefaultRefreshInterval, nil
	}
	parsed, err := duration.Parse(d.Settings.RefreshInterval)
	if err != nil {
		return 0, model.NewConfigError("invalid refresh interval", "refresh_interval", d.Settings.RefreshInterval)
	}
	interval := parsed.ToTimeDuration()
	if interval <= 0 {
		return 0, model.NewConfigError("refresh interval must be positive", "refresh_interval", d.Settings.RefreshInterval)
	}
	return interval, nil
}

// Load reads a session document. JSON documents are valid YAML and load as is.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	return &doc, nil
}

// Save writes JSON for .json paths and YAML otherwise.
func (d *Document) Save(path string) error {
	var (
		raw []byte
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		raw, err = json.MarshalIndent(d, "", "  ")
	} else {
		raw, err = yaml.Marshal(d)
	}
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
