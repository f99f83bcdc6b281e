package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/app"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/config"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/logging"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the enabled sites and export their records",
		Long: `Builds the frontier of every enabled site, walks each category page by
page, extracts the listed products on a bounded worker pool, and exports
one CSV per site. Interrupting the crawl still exports what was collected.`,
		RunE: runCrawlCommand,
	}
	flags := cmd.Flags()
	flags.StringSlice("site", nil, "sites to crawl (dalben, paguemenos)")
	flags.Bool("deep-scrape", false, "fetch paguemenos product pages for ref and brand")
	flags.String("listen", "", "address for the progress/metrics HTTP server, e.g. :8080")
	flags.String("output-dir", "", "directory for exported CSV files")
	flags.Int("max-pages", 0, "clamp every category to at most this many pages (0 = unbounded)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("read config flag: %w", err)
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("close application", zap.Error(cerr))
		}
	}()

	outcomes, runErr := a.Run(ctx)
	printOutcomes(cmd.OutOrStdout(), outcomes)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("crawl interrupted", zap.Error(runErr))
			return nil
		}
		return fmt.Errorf("crawl: %w", runErr)
	}
	return nil
}

func printOutcomes(w io.Writer, outcomes []app.Outcome) {
	if len(outcomes) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SITE\tKEY\tCATEGORIES\tPAGES\tRECORDS\tFAILED\tELAPSED\tEXPORT")
	for _, o := range outcomes {
		s := o.Summary
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			s.Site, s.KeyField, s.Categories-s.CategoriesSkipped, s.Pages, s.Records, s.Failed,
			s.Elapsed().Round(time.Millisecond), o.Export.URI)
	}
	_ = tw.Flush()
}
