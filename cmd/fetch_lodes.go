package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newFetchLODESCmd() *cobra.Command {
	var year, state string
	cmd := &cobra.Command{
		Use:   "fetch-lodes",
		Short: "Download LEHD origin-destination tables",
		Long: `Downloads the main and aux origin-destination tables for one year and
writes them under lodes/year=Y/part=P/state=S. --state restricts the run to a
single state; otherwise every configured state is fetched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			states := a.Config().Input.State
			if state != "" {
				states = []string{strings.ToLower(state)}
			}
			res, err := a.LODESFetcher().Fetch(cmd.Context(), year, states)
			if err != nil {
				return err
			}
			failed := make([]string, 0, len(res.Failed))
			for _, k := range res.Failed {
				failed = append(failed, k.String())
			}
			a.Logger().Info("fetch-lodes finished",
				zap.Int("files", len(res.Written)),
				zap.Int("rows", res.Rows),
				zap.Strings("failed", failed),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "LODES year, e.g. 2022")
	cmd.Flags().StringVar(&state, "state", "", "two-letter state abbreviation")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}
