// Command pager-demo drives a pagination engine against a page source the
// way a scrolling list view would.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/eve-esi-pager/internal/config"
	"github.com/Sternrassler/eve-esi-pager/pkg/logging"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "pager-demo",
		Short:        "Incrementally load a paginated list",
		SilenceUsage: true,
	}

	root.AddCommand(
		newRunCommand(),
		newVersionCommand(),
	)

	return root
}

func newRunCommand() *cobra.Command {
	var (
		configFile string
		source     string
		opts       = defaultRunOptions()
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Refresh once, then load more until the list is complete",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if source != "" {
				cfg.Source = source
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid config: %w", err)
				}
			}

			logging.Setup(cfg.Logging())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path (default ./pager.yaml if present)")
	cmd.Flags().StringVar(&source, "source", "", "page source: stub or http (overrides config)")
	cmd.Flags().DurationVar(&opts.settle, "settle", opts.settle, "how long an unanswered load-more is awaited before the list counts as complete")
	cmd.Flags().IntVar(&opts.maxFailures, "max-failures", opts.maxFailures, "consecutive failed fetches tolerated before giving up")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "keep serving /metrics and /health after loading until interrupted")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pager-demo %s\n", version)
		},
	}
}

type runOptions struct {
	settle      time.Duration
	maxFailures int
	serve       bool
}

func defaultRunOptions() runOptions {
	return runOptions{
		settle:      500 * time.Millisecond,
		maxFailures: 3,
	}
}
