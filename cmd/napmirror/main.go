package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/napmirror/internal/config"
	"github.com/danmuck/napmirror/internal/observability"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	verbose    bool
	journal    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "napmirror",
		Short:         "Mirror and inspect a remote NAP object graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			observability.InitLogger("napmirror", opts.verbose)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a TOML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&opts.journal, "journal", "", "journal inbound envelopes to this sqlite file")

	root.AddCommand(
		newWatchCmd(opts),
		newTreeCmd(opts),
		newTypesCmd(opts),
		newServeCmd(opts),
		newReplayCmd(opts),
	)
	return root
}

// load reads the config file and applies flag overrides.
func (o *options) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.journal != "" {
		cfg.Journal.Path = o.journal
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "napmirror: %v\n", err)
		os.Exit(1)
	}
}
