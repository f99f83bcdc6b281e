// Package cmd defines the CLI commands of the catalog crawler.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/app"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/config"
)

// crawlApp is what the crawl command drives. Tests swap in a fake.
type crawlApp interface {
	Run(ctx context.Context) ([]app.Outcome, error)
	Close(ctx context.Context) error
}

// newApp is the application factory; a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawlApp, error) {
	return app.New(ctx, cfg, nil, logger)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog-crawler",
		Short: "Crawls grocery catalogs into keyed product tables.",
		Long: `catalog-crawler walks the category listings of supported grocery sites,
extracts one record per product, and exports each site's records as a CSV
keyed by the site's product identifier.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", "", "config file (default: catalog.yaml in . or $HOME/.catalog-crawler)")
	cmd.PersistentFlags().Bool("dev", false, "development logging")
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute runs the root command until it finishes or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
