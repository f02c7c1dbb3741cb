package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"spc_monitor/internal/source"
)

func generateCmd() *cobra.Command {
	gen := source.Generator{
		Path:   readEnv("GENERATOR_FILE", "signal.txt"),
		Period: 100 * time.Millisecond,
		Mean:   readEnvFloat("GENERATOR_MEAN", 0),
		StdDev: readEnvFloat("GENERATOR_STD_DEV", 1),
	}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Append normally distributed noise to a file, one value per period",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := newLogger(false)
			log.Info("generating", "file", gen.Path, "period", gen.Period, "mean", gen.Mean, "std_dev", gen.StdDev)
			return gen.Run(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&gen.Path, "file", "f", gen.Path, "file to write")
	f.DurationVar(&gen.Period, "period", gen.Period, "time between values")
	f.Float64Var(&gen.Mean, "mean", gen.Mean, "mean of the noise")
	f.Float64Var(&gen.StdDev, "std-dev", gen.StdDev, "standard deviation of the noise")
	return cmd
}
