package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/census-pipeline/internal/app"
	"github.com/JakeFAU/census-pipeline/internal/config"
	"github.com/JakeFAU/census-pipeline/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newRootCmd creates the root command and registers every subcommand.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "censusctl",
		Short: "Fetch, aggregate and publish Census boundary and commuting data.",
		Long: `censusctl downloads Census cartographic boundary files and LEHD
origin-destination tables, writes them to a year/state partitioned tree and
publishes the aggregated flow tables to object storage.

Years, states, origins and geographies come from the parameter file
(params.yaml by default); every key can be overridden with a CENSUS_
environment variable.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			a, err := app.New(cfg, logger, cmd.Name())
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			if err := a.StartMetrics(); err != nil {
				a.Close(cmd.Context())
				return err
			}
			cmd.SetContext(context.WithValue(a.Context(cmd.Context()), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "parameter file (default is "+config.DefaultPath+")")

	cmd.AddCommand(
		newFetchCBCmd(),
		newFetchLODESCmd(),
		newAggregateLODESCmd(),
		newBuildSupertractCmd(),
		newPublishCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// execute runs root and closes the App built for the executed command,
// whether or not it succeeded.
func execute(ctx context.Context, root *cobra.Command) error {
	c, err := root.ExecuteContextC(ctx)
	if c != nil && c.Context() != nil {
		if a, ok := c.Context().Value(appKey).(*app.App); ok && a != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.Close(closeCtx)
		}
	}
	return err
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, newRootCmd())
	stop()
	if err != nil {
		// cobra has already printed the error.
		os.Exit(1)
	}
}
