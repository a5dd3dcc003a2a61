package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/napmirror/internal/core"
	"github.com/danmuck/napmirror/internal/export"
	"github.com/danmuck/napmirror/internal/journal"
	"github.com/danmuck/napmirror/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errOffline = errors.New("napmirror: replay is offline")

// offline satisfies core.Transport for a mirror rebuilt from a journal.
type offline struct {
	envs chan protocol.Envelope
}

func (offline) Send(string, ...any) error { return errOffline }

func (o offline) Envelopes() <-chan protocol.Envelope { return o.envs }

func (offline) Identity() string { return "replay" }

type replayStats struct {
	Envelopes int
	Failures  int
}

func newReplayCmd(_ *options) *cobra.Command {
	var format, path string
	cmd := &cobra.Command{
		Use:   "replay <journal.db>",
		Short: "Rebuild the mirror from a journal and print the final tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, stats, err := replay(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			log.Info().
				Int("envelopes", stats.Envelopes).
				Int("failures", stats.Failures).
				Msg("napmirror: replay complete")
			if c.Root() == nil {
				return ErrNoTree
			}
			root := c.Root()
			if path != "" {
				obj, ok := c.ResolvePath(path)
				if !ok {
					return fmt.Errorf("%w: %s", ErrNoSuchPath, path)
				}
				root = obj
			}
			return export.Encode(cmd.OutOrStdout(), root.Snapshot(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", export.FormatJSON, "output format: json or yaml")
	cmd.Flags().StringVarP(&path, "path", "p", "", "print only the subtree at this name path")
	return cmd
}

// replay feeds every journaled envelope to a fresh core in arrival order.
// Dispatch failures are counted, not fatal, matching the live loop.
func replay(ctx context.Context, dbPath string) (*core.Core, replayStats, error) {
	var stats replayStats
	store, err := journal.Open(dbPath)
	if err != nil {
		return nil, stats, err
	}
	defer store.Close()

	c, err := core.New(offline{envs: make(chan protocol.Envelope)}, core.WithExporter(export.Discard{}))
	if err != nil {
		return nil, stats, err
	}
	err = store.Replay(ctx, func(e journal.Entry) error {
		stats.Envelopes++
		if err := c.HandleMessage(e.Envelope); err != nil {
			stats.Failures++
		}
		return nil
	})
	if err != nil {
		return nil, stats, err
	}
	return c, stats, nil
}
