package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/census-pipeline/internal/tiger"
)

func newBuildSupertractCmd() *cobra.Command {
	var year string
	cmd := &cobra.Command{
		Use:   "build-supertract",
		Short: "Dissolve the tract layer into supertracts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			_, err = tiger.BuildSupertracts(a.Config().Paths.Root, year, a.Logger())
			return err
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "boundary vintage of an existing tract layer")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}
