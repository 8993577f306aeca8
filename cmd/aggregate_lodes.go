package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/census-pipeline/internal/lodes"
)

func newAggregateLODESCmd() *cobra.Command {
	var year string
	cmd := &cobra.Command{
		Use:   "aggregate-lodes",
		Short: "Roll origin-destination flows up to Census geographies",
		Long: `Reads the main LODES partition of every configured state and writes one
Parquet flow table per configured geography and origin. Geographies that
cannot be derived from block geocodes (zcta, county_subdivision) are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.Config()
			if err := cfg.RequireYear(year); err != nil {
				return err
			}
			var geographies []string
			for _, g := range cfg.Input.Census.Geography {
				if _, err := lodes.PrefixLength(g); err != nil {
					a.Logger().Info("geography not derivable from blocks; skipping", zap.String("geography", g))
					continue
				}
				geographies = append(geographies, g)
			}
			if len(geographies) == 0 {
				return fmt.Errorf("no configured geography can be aggregated from block geocodes")
			}

			res, err := a.Aggregator().Aggregate(cmd.Context(), lodes.AggregateRequest{
				Year:        year,
				States:      cfg.Input.State,
				Geographies: geographies,
				Origins:     cfg.Input.Origin,
			})
			if err != nil {
				return err
			}
			a.Logger().Info("aggregate-lodes finished",
				zap.Int("files", len(res.Written)),
				zap.Strings("failed", res.Failed),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "LODES year; must be listed in input.year")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}
