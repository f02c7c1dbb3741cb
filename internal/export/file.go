package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"spc_monitor/internal/trigger"
	"spc_monitor/internal/windowstats"
)

const (
	DefaultDir          = "trigger_output"
	DefaultCombinedName = "combined_trigger_output"
)

var errNoOutput = errors.New("chain has no individual output file")

// FileExporter writes each chain to its own tab-delimited file and mirrors
// every chain row, prefixed with the trigger name, into one combined file.
type FileExporter struct {
	IndividualDir string
	CombinedPath  string
	Now           func() time.Time
}

func NewFileExporter(individualDir, combinedDir, combinedName string) (*FileExporter, error) {
	for _, dir := range []string{individualDir, combinedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	return &FileExporter{
		IndividualDir: individualDir,
		CombinedPath:  filepath.Join(combinedDir, combinedName),
		Now:           time.Now,
	}, nil
}

// Stamp formats t as YYYY_MM_DD-HHMM_SS_ffffff.
func Stamp(t time.Time) string {
	return t.Format("2006_01_02-1504_05") + fmt.Sprintf("_%06d", t.Nanosecond()/1000)
}

func (e *FileExporter) Begin(c *trigger.Chain) error {
	stamp := Stamp(e.Now())
	path := filepath.Join(e.IndividualDir, stamp+"_"+c.Trigger+"_trigger")
	w := c.Window()

	if err := writeRows(path, os.O_TRUNC, individualRows(stamp, w)); err != nil {
		return fmt.Errorf("write individual file: %w", err)
	}
	if err := writeRows(e.CombinedPath, os.O_TRUNC, combinedRows(c.Trigger, stamp, w)); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("write combined file: %w", err)
	}
	c.Output = path
	return nil
}

func (e *FileExporter) Extend(c *trigger.Chain, added windowstats.Window) error {
	if c.Output == "" {
		return errNoOutput
	}
	stamp := Stamp(e.Now())
	if err := writeRows(c.Output, os.O_APPEND, individualRows(stamp, added)); err != nil {
		return fmt.Errorf("append individual file: %w", err)
	}
	if err := writeRows(e.CombinedPath, os.O_APPEND, combinedRows(c.Trigger, stamp, added)); err != nil {
		return fmt.Errorf("append combined file: %w", err)
	}
	return nil
}

func individualRows(stamp string, w windowstats.Window) [][]string {
	rows := make([][]string, w.Len())
	for i := range rows {
		rows[i] = []string{stamp, formatFloat(w.Times[i]), formatFloat(w.Values[i])}
	}
	return rows
}

func combinedRows(name, stamp string, w windowstats.Window) [][]string {
	rows := make([][]string, w.Len())
	for i := range rows {
		rows[i] = []string{name, stamp, formatFloat(w.Times[i]), formatFloat(w.Values[i])}
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeRows(path string, mode int, rows [][]string) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	return w.WriteAll(rows)
}
