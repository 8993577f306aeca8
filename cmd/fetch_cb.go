package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/census-pipeline/internal/tiger"
)

func newFetchCBCmd() *cobra.Command {
	var year, geography string
	cmd := &cobra.Command{
		Use:   "fetch-cb",
		Short: "Download cartographic boundary files and write GeoJSON layers",
		Long: `Downloads the 1:500k cartographic boundary archives for one year. National
geographies are a single archive; per-state geographies fetch one archive per
configured state. Without --geography every configured geography is fetched;
layers built from others (supertract) are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.Config()
			geographies := cfg.Input.Census.Geography
			if geography != "" {
				geographies = []string{geography}
			}
			if len(geographies) == 0 {
				return fmt.Errorf("no geography given and input.census.geography is empty")
			}
			if geography != "" {
				if _, err := tiger.LookupGeography(geography); err != nil {
					return err
				}
			} else {
				var fetchable []string
				for _, g := range geographies {
					if _, err := tiger.LookupGeography(g); err != nil {
						if !tiger.Derived(g) {
							return err
						}
						a.Logger().Info("geography is built from other layers; skipping", zap.String("geography", g))
						continue
					}
					fetchable = append(fetchable, g)
				}
				if len(fetchable) == 0 {
					return fmt.Errorf("no configured geography has a boundary download")
				}
				geographies = fetchable
			}

			f := a.TigerFetcher()
			for _, g := range geographies {
				res, err := f.Fetch(cmd.Context(), tiger.Request{
					Year:      year,
					Geography: g,
					States:    cfg.Input.State,
				})
				if err != nil {
					return fmt.Errorf("fetch %s: %w", g, err)
				}
				a.Logger().Info("fetch-cb finished",
					zap.String("geography", g),
					zap.String("path", res.Path),
					zap.Strings("failed", res.Failed),
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "boundary vintage, e.g. 2022")
	cmd.Flags().StringVar(&geography, "geography", "", "geography name: "+joinNames(tiger.GeographyNames()))
	_ = cmd.MarkFlagRequired("year")
	return cmd
}
