package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/maplink/pkg/geocode"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Find coordinates from addresses and addresses from coordinates",
}

var geocodeSearchCmd = &cobra.Command{
	Use:   "search [QUERY...]",
	Short: "Search a free-text address, or a batch of addresses from a file",
	Example: `  maplink geocode search "Avenida Paulista, 1000"
  maplink geocode search --file addresses.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		global, _ := cmd.Flags().GetBool("global")

		query := strings.TrimSpace(strings.Join(args, " "))
		if (query == "") == (file == "") {
			return errors.New("give either a query or --file")
		}

		return run(cmd, nil, func(s *session) (any, error) {
			g, err := s.sdk.Geocode()
			if err != nil {
				return nil, err
			}
			g.SetGlobalSearch(global)

			if file == "" {
				return g.Search(cmd.Context(), query)
			}
			var queries []geocode.AddressQuery
			if err := s.loadFile(file, &queries); err != nil {
				return nil, err
			}
			return g.SearchMany(cmd.Context(), queries)
		})
	},
}

var geocodeReverseCmd = &cobra.Command{
	Use:   "reverse LAT LON",
	Short: "Find the address of a point",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q", args[0])
		}
		lon, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q", args[1])
		}

		return run(cmd, nil, func(s *session) (any, error) {
			g, err := s.sdk.Geocode()
			if err != nil {
				return nil, err
			}
			return g.Reverse(cmd.Context(), geocode.Coords{Lat: lat, Lon: lon})
		})
	},
}

func init() {
	geocodeSearchCmd.Flags().StringP("file", "f", "", "YAML or JSON file with a list of addresses, each with an id")
	geocodeSearchCmd.Flags().Bool("global", false, "Search outside Brazil")

	geocodeCmd.AddCommand(geocodeSearchCmd)
	geocodeCmd.AddCommand(geocodeReverseCmd)
}
