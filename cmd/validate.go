package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"spc_monitor/internal/session"
)

func validateCmd() *cobra.Command {
	var (
		sessionFile = readEnv("SESSION_FILE", "")
		out         string
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a session document builds, optionally rewriting it as yaml or json",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validate(cmd.OutOrStdout(), sessionFile, out)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&sessionFile, "session", "s", sessionFile, "session document (yaml or json)")
	f.StringVarP(&out, "out", "o", "", "write the parsed document here, json for .json paths and yaml otherwise")
	return cmd
}

func validate(w io.Writer, sessionFile, out string) error {
	if sessionFile == "" {
		return errors.New("no session document, set --session or SESSION_FILE")
	}
	doc, err := session.Load(sessionFile)
	if err != nil {
		return err
	}
	interval, err := doc.RefreshInterval()
	if err != nil {
		return err
	}
	engine, err := session.Build(doc, session.BuildOptions{Log: newLogger(false)})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "session %s: %d triggers, refresh %s\n", sessionFile, len(engine.Triggers()), interval)
	if out == "" {
		return nil
	}
	if err := doc.Save(out); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s\n", out)
	return nil
}
