package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/maplink/internal/monitor"
	"github.com/wesleyorama2/maplink/internal/output"
	"github.com/wesleyorama2/maplink/pkg/maplink"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and print platform calls and job callbacks",
	Long: `Run the webhook server until interrupted. It receives job callbacks on
/callback and serves the monitor on /monitor, /fetch-stream and /metrics.
Every platform call and callback is printed as it happens.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		port, _ := cmd.Flags().GetInt("port")

		s, err := openSession(cmd, func(c *maplink.Config) {
			if port > 0 {
				c.ServerPort = port
			}
			c.LazyInit = false
		})
		if err != nil {
			return err
		}
		defer func() {
			if cerr := s.Close(); err == nil {
				err = cerr
			}
		}()

		if s.sdk.Server() == nil {
			return errors.New("no server port: set server.port or --port")
		}

		ctx := cmd.Context()
		if err := s.sdk.Init(ctx); err != nil {
			return err
		}
		noColor, _ := cmd.Flags().GetBool("no-color")
		fmt.Fprintf(cmd.ErrOrStderr(), "%s listening on port %d, callbacks to %s\n",
			output.InfoIcon(!output.ColorEnabled(cmd.ErrOrStderr(), noColor)), s.sdk.Server().Port(), s.sdk.Server().URL())

		off := s.sdk.Monitor().OnCallback(func(ev monitor.CallbackEvent) {
			_ = s.out.Callback(ev)
		})
		defer off()

		for {
			events, unsubscribe := s.sdk.Monitor().Subscribe()
			if err := stream(cmd, s.out, events); err != nil {
				unsubscribe()
				return err
			}
			unsubscribe()
			if ctx.Err() != nil {
				return nil
			}
		}
	},
}

// stream prints fetch events until the command is cancelled, returning
// nil early when the monitor closes the channel.
func stream(cmd *cobra.Command, p *output.Printer, events <-chan monitor.FetchEvent) error {
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := p.Fetch(ev); err != nil {
				return err
			}
		}
	}
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Fetch an access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, nil, func(s *session) (any, error) {
			if err := s.sdk.Init(cmd.Context()); err != nil {
				return nil, err
			}
			tok := s.sdk.Token()
			return map[string]any{
				"accessToken": tok.Value(),
				"expiresAt":   tok.Expiry(),
			}, nil
		})
	},
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the configured modules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, nil, func(s *session) (any, error) {
			return s.sdk.Modules(), nil
		})
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Webhook server port (overrides server.port)")
}
