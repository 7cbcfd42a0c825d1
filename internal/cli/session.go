package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/maplink/internal/auth"
	"github.com/wesleyorama2/maplink/internal/config"
	"github.com/wesleyorama2/maplink/internal/monitor"
	"github.com/wesleyorama2/maplink/internal/output"
	"github.com/wesleyorama2/maplink/pkg/api"
	"github.com/wesleyorama2/maplink/pkg/maplink"
)

// session is one command's SDK plus its printers: out for results on
// stdout, events for platform calls on stderr.
type session struct {
	sdk    *maplink.SDK
	out    *output.Printer
	events *output.Printer
	vars   map[string]string
	off    func()
}

// openSession loads the configuration and builds the SDK. One-shot
// commands rely on lazy init; configure may override the SDK settings.
func openSession(cmd *cobra.Command, configure func(*maplink.Config)) (*session, error) {
	path, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	noColor, _ := cmd.Flags().GetBool("no-color")
	outputFlag, _ := cmd.Flags().GetString("output")
	varFlags, _ := cmd.Flags().GetStringArray("var")

	format, err := output.ParseFormat(outputFlag)
	if err != nil {
		return nil, err
	}
	flagVars, err := config.ParseVariables(varFlags)
	if err != nil {
		return nil, err
	}

	doc, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	vars := config.MergeVariables(doc.Variables, flagVars)
	cfg, err := doc.SDK()
	if err != nil {
		return nil, err
	}
	cfg.LazyInit = true
	cfg.LogOutput = cmd.ErrOrStderr()
	if configure != nil {
		configure(&cfg)
	}

	sdk, err := maplink.New(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{
		sdk:    sdk,
		out:    output.NewPrinter(cmd.OutOrStdout(), format, verbose, noColor),
		events: output.NewPrinter(cmd.ErrOrStderr(), output.FormatText, verbose, noColor),
		vars:   vars,
	}
	if verbose {
		s.off = sdk.Api().OnFetchEnd(func(f *api.Fetch) {
			if f.Name == auth.FetchName {
				return
			}
			_ = s.events.Fetch(monitor.NewFetchEvent(f))
		})
	}
	return s, nil
}

// Close stops the SDK.
func (s *session) Close() error {
	if s.off != nil {
		s.off()
	}
	return s.sdk.Close()
}

// loadFile decodes a request file with the session's variables.
func (s *session) loadFile(path string, v any) error {
	if path == "" {
		return errors.New("--file is required")
	}
	if err := config.LoadRequest(path, s.vars, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// run opens a session, calls fn and prints what it returns.
func run(cmd *cobra.Command, configure func(*maplink.Config), fn func(*session) (any, error)) (err error) {
	s, err := openSession(cmd, configure)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()

	v, err := fn(s)
	if err != nil {
		return err
	}
	return s.out.Value(v)
}
