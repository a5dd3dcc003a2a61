package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/napmirror/internal/config"
	"github.com/danmuck/napmirror/internal/core"
	"github.com/danmuck/napmirror/internal/export"
	"github.com/danmuck/napmirror/internal/journal"
	"github.com/danmuck/napmirror/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// liveMirror is a dialed session with a core over it.
type liveMirror struct {
	client  *session.Client
	core    *core.Core
	journal *journal.Store
}

func openMirror(ctx context.Context, cfg config.Config) (*liveMirror, error) {
	exporter, err := export.New(cfg.Export)
	if err != nil {
		return nil, err
	}
	m := &liveMirror{}
	opts := []core.Option{
		core.WithExporter(exporter),
		core.WithCallTimeout(cfg.CallTimeout),
		core.WithLogger(log.Logger),
	}
	if cfg.Journal.Path != "" {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		m.journal = store
		opts = append(opts, core.WithJournal(store))
	}

	client, err := session.Dial(ctx, cfg.Session())
	if err != nil {
		m.close()
		return nil, err
	}
	m.client = client

	c, err := core.New(client, opts...)
	if err != nil {
		m.close()
		return nil, err
	}
	m.core = c
	return m, nil
}

// run drives the event loop while fn works against the core. The loop stops
// once fn returns; a loop failure cancels fn's context.
func (m *liveMirror) run(ctx context.Context, fn func(context.Context, *core.Core) error) error {
	defer m.close()
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		err := m.core.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer stopLoop()
		return fn(gctx, m.core)
	})
	return g.Wait()
}

func (m *liveMirror) close() {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			log.Debug().Err(err).Msg("napmirror: close session")
		}
	}
	if m.journal != nil {
		if err := m.journal.Close(); err != nil {
			log.Warn().Err(err).Msg("napmirror: close journal")
		}
	}
}

// withMirror loads config, dials, loads module info and the tree, then runs fn.
func withMirror(ctx context.Context, opts *options, fn func(context.Context, *core.Core) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	m, err := openMirror(ctx, cfg)
	if err != nil {
		return err
	}
	return m.run(ctx, func(ctx context.Context, c *core.Core) error {
		if err := c.LoadModuleInfo(ctx); err != nil {
			return fmt.Errorf("load module info: %w", err)
		}
		return fn(ctx, c)
	})
}
