package cli

import (
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/maplink/pkg/trip"
)

var tripCmd = &cobra.Command{
	Use:   "trip",
	Short: "Calculate routes",
}

var tripCalculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Calculate a route through the points of a request file",
	Example: `  maplink trip calculate --file trip.yaml --points-mode polyline
  maplink trip calculate -f trip.yaml --var MODE=THE_SHORTEST`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		mode, err := pointsMode(cmd)
		if err != nil {
			return err
		}

		return run(cmd, nil, func(s *session) (any, error) {
			t, err := s.sdk.Trip()
			if err != nil {
				return nil, err
			}
			var req trip.Request
			if err := s.loadFile(file, &req); err != nil {
				return nil, err
			}
			return t.Calculate(cmd.Context(), &req, mode)
		})
	},
}

var tripSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a route calculation job; progress arrives on the webhook server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		return run(cmd, nil, func(s *session) (any, error) {
			t, err := s.sdk.Trip()
			if err != nil {
				return nil, err
			}
			var req trip.Request
			if err := s.loadFile(file, &req); err != nil {
				return nil, err
			}
			return t.Create(cmd.Context(), &req)
		})
	},
}

var tripSolutionCmd = &cobra.Command{
	Use:   "solution JOB_ID",
	Short: "Get the route calculated by a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := pointsMode(cmd)
		if err != nil {
			return err
		}

		return run(cmd, nil, func(s *session) (any, error) {
			t, err := s.sdk.Trip()
			if err != nil {
				return nil, err
			}
			return t.Solution(cmd.Context(), args[0], mode)
		})
	},
}

func pointsMode(cmd *cobra.Command) (trip.PointsMode, error) {
	name, _ := cmd.Flags().GetString("points-mode")
	return trip.ParsePointsMode(name)
}

func init() {
	tripCalculateCmd.Flags().StringP("file", "f", "", "YAML or JSON trip request")
	tripCalculateCmd.Flags().String("points-mode", string(trip.PointsObject), "Leg points encoding: object, array, geohash or polyline")
	tripSubmitCmd.Flags().StringP("file", "f", "", "YAML or JSON trip request")
	tripSolutionCmd.Flags().String("points-mode", string(trip.PointsObject), "Leg points encoding: object, array, geohash or polyline")

	tripCmd.AddCommand(tripCalculateCmd)
	tripCmd.AddCommand(tripSubmitCmd)
	tripCmd.AddCommand(tripSolutionCmd)
	tripCmd.AddCommand(jobCommands(func(s *session) (jobAPI, error) { return s.sdk.Trip() })...)
}
