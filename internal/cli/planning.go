package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/maplink/pkg/maplink"
	"github.com/wesleyorama2/maplink/pkg/module"
	"github.com/wesleyorama2/maplink/pkg/planning"
)

var planningCmd = &cobra.Command{
	Use:   "planning",
	Short: "Solve route planning problems",
}

var planningSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a planning problem",
	Long: `Submit a planning problem. With --wait the command starts the webhook
server, waits for the job to finish and prints its solution; the platform
must be able to reach server.public_url.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		wait, _ := cmd.Flags().GetBool("wait")
		port, _ := cmd.Flags().GetInt("port")

		var configure func(*maplink.Config)
		if port > 0 {
			configure = func(c *maplink.Config) { c.ServerPort = port }
		}

		return run(cmd, configure, func(s *session) (any, error) {
			p, err := s.sdk.Planning()
			if err != nil {
				return nil, err
			}
			var problem planning.Problem
			if err := s.loadFile(file, &problem); err != nil {
				return nil, err
			}

			if !wait {
				return p.Submit(cmd.Context(), &problem)
			}
			if s.sdk.Server() == nil {
				return nil, errors.New("--wait needs the webhook server: set server.port or --port")
			}
			if err := s.sdk.Init(cmd.Context()); err != nil {
				return nil, err
			}
			return p.Create(cmd.Context(), &problem)
		})
	},
}

// jobAPI is what the job commands need from a module.
type jobAPI interface {
	Events(ctx context.Context, jobID string) ([]module.Event, error)
	Status(ctx context.Context, jobID string) (*module.Event, error)
}

// jobCommands builds the status and events commands of a module with jobs.
func jobCommands(get func(*session) (jobAPI, error)) []*cobra.Command {
	job := func(call func(context.Context, jobAPI, string) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return run(cmd, nil, func(s *session) (any, error) {
				m, err := get(s)
				if err != nil {
					return nil, err
				}
				return call(cmd.Context(), m, args[0])
			})
		}
	}

	return []*cobra.Command{
		{
			Use:   "status JOB_ID",
			Short: "Get the last status event of a job",
			Args:  cobra.ExactArgs(1),
			RunE: job(func(ctx context.Context, m jobAPI, id string) (any, error) {
				return m.Status(ctx, id)
			}),
		},
		{
			Use:   "events JOB_ID",
			Short: "List the status events of a job",
			Args:  cobra.ExactArgs(1),
			RunE: job(func(ctx context.Context, m jobAPI, id string) (any, error) {
				return m.Events(ctx, id)
			}),
		},
	}
}

var planningSolutionCmd = &cobra.Command{
	Use:   "solution JOB_ID",
	Short: "Get the solution of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, nil, func(s *session) (any, error) {
			p, err := s.sdk.Planning()
			if err != nil {
				return nil, err
			}
			return p.Solution(cmd.Context(), args[0])
		})
	},
}

func init() {
	planningSubmitCmd.Flags().StringP("file", "f", "", "YAML or JSON planning problem")
	planningSubmitCmd.Flags().BoolP("wait", "w", false, "Wait for the solution")
	planningSubmitCmd.Flags().Int("port", 0, "Webhook server port (overrides server.port)")

	planningCmd.AddCommand(planningSubmitCmd)
	planningCmd.AddCommand(planningSolutionCmd)
	planningCmd.AddCommand(jobCommands(func(s *session) (jobAPI, error) { return s.sdk.Planning() })...)
}
