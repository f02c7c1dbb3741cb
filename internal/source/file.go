package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"spc_monitor/internal/model"
)

// DefaultTimeFactor turns nanoseconds into milliseconds.
const DefaultTimeFactor = 1000000

var errEmptyFile = errors.New("file has no data line")

// Options select the fields of a delimited line. Without a TimestampPosition
// the sample time is the system clock in nanoseconds divided by TimeFactor.
type Options struct {
	Separator         string `yaml:"separator,omitempty" json:"separator,omitempty"`
	DataPosition      int    `yaml:"data_position,omitempty" json:"data_position,omitempty"`
	TimestampPosition *int   `yaml:"timestamp_position,omitempty" json:"timestamp_position,omitempty"`
	TimeFactor        int64  `yaml:"time_factor,omitempty" json:"time_factor,omitempty"`
}

// FileSource reads the last line of a file written by an external producer.
type FileSource struct {
	path string
	opts Options
	now  func() time.Time
}

func NewFileSource(path string, opts Options) (*FileSource, error) {
	if opts.TimestampPosition != nil && *opts.TimestampPosition == opts.DataPosition {
		return nil, model.NewConfigError(
			fmt.Sprintf("data and timestamp position of file reader for %q are the same", path),
			"timestamp_position", *opts.TimestampPosition)
	}
	if opts.DataPosition < 0 || (opts.TimestampPosition != nil && *opts.TimestampPosition < 0) {
		return nil, model.NewConfigError("field positions must not be negative", "data_position", opts.DataPosition)
	}
	if opts.Separator == "" {
		opts.Separator = " "
	}
	if opts.TimeFactor <= 0 {
		opts.TimeFactor = DefaultTimeFactor
	}
	return &FileSource{path: path, opts: opts, now: time.Now}, nil
}

func (s *FileSource) Path() string {
	return s.path
}

func (s *FileSource) Next() (float64, float64, error) {
	line, err := LastLine(s.path)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Split(line, s.opts.Separator)

	value, err := field(fields, s.opts.DataPosition)
	if err != nil {
		return 0, 0, fmt.Errorf("data field: %w", err)
	}
	if s.opts.TimestampPosition == nil {
		return float64(s.now().UnixNano() / s.opts.TimeFactor), value, nil
	}
	ts, err := field(fields, *s.opts.TimestampPosition)
	if err != nil {
		return 0, 0, fmt.Errorf("timestamp field: %w", err)
	}
	return ts, value, nil
}

func field(fields []string, pos int) (float64, error) {
	if pos >= len(fields) {
		return 0, fmt.Errorf("line has %d fields, want position %d", len(fields), pos)
	}
	return strconv.ParseFloat(strings.TrimSpace(fields[pos]), 64)
}

// LastLine returns the final non-empty line of path, reading backwards from
// the end in fixed-size chunks.
func LastLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	const chunk = 512
	var tail []byte
	for offset := info.Size(); offset > 0; {
		n := int64(chunk)
		if offset < n {
			n = offset
		}
		offset -= n
		buf := make([]byte, n)
		if _, err := f.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		tail = append(buf, tail...)

		trimmed := bytes.TrimRight(tail, "\r\n")
		if i := bytes.LastIndexByte(trimmed, '\n'); i >= 0 {
			return string(bytes.TrimRight(trimmed[i+1:], "\r")), nil
		}
		if offset == 0 && len(trimmed) > 0 {
			return string(trimmed), nil
		}
	}
	return "", errEmptyFile
}
