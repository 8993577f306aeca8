package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/census-pipeline/internal/publish"
)

func newPublishCmd() *cobra.Command {
	var dataset, year, geography string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload aggregated flow tables to the public bucket",
		Long: `Uploads the flow table of every configured state and origin for one year
and geography. Objects whose remote MD5 already matches are skipped; missing
local tables are logged and skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.Config()
			if err := cfg.RequireGeography(geography); err != nil {
				return err
			}
			pub, err := a.Publisher(cmd.Context())
			if err != nil {
				return err
			}
			res, err := pub.Publish(cmd.Context(), publish.Request{
				Dataset:   dataset,
				Year:      year,
				Geography: geography,
				States:    cfg.Input.State,
				Origins:   cfg.Input.Origin,
			})
			if err != nil {
				return err
			}
			a.Logger().Info("publish finished",
				zap.Int("uploaded", len(res.Uploaded)),
				zap.Int("skipped", len(res.Skipped)),
				zap.Int("absent", len(res.Absent)),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "", "remote dataset prefix, e.g. od")
	cmd.Flags().StringVar(&year, "year", "", "year of the flow tables")
	cmd.Flags().StringVar(&geography, "geography", "", "geography; must be listed in input.census.geography")
	for _, f := range []string{"dataset", "year", "geography"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
