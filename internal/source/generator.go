package source

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"
)

// Generator appends normally distributed values to a file, one per period,
// standing in for an external producer.
type Generator struct {
	Path   string
	Period time.Duration
	Mean   float64
	StdDev float64
	Rand   *rand.Rand
}

// Run truncates the file and writes until ctx is done.
func (g *Generator) Run(ctx context.Context) error {
	if err := os.WriteFile(g.Path, nil, 0o644); err != nil {
		return fmt.Errorf("truncate %s: %w", g.Path, err)
	}
	rng := g.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ticker := time.NewTicker(g.Period)
	defer ticker.Stop()
	for {
		if err := g.write(rng.NormFloat64()*g.StdDev + g.Mean); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (g *Generator) write(v float64) error {
	f, err := os.OpenFile(g.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", g.Path, err)
	}
	_, err = f.WriteString(strconv.FormatFloat(v, 'f', -1, 64) + "\n")
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
