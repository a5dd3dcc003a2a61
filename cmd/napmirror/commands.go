package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/napmirror/internal/core"
	"github.com/danmuck/napmirror/internal/events"
	"github.com/danmuck/napmirror/internal/export"
	"github.com/danmuck/napmirror/internal/inspect"
	"github.com/danmuck/napmirror/internal/mirror"
	"github.com/spf13/cobra"
)

var (
	ErrNoTree     = errors.New("napmirror: no object tree loaded")
	ErrNoSuchPath = errors.New("napmirror: no object at path")
	ErrKind       = errors.New("napmirror: kind must be one of components, operators, data")
)

func newWatchCmd(opts *options) *cobra.Command {
	var callbacks bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Load the graph and print every change until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			return withMirror(cmd.Context(), opts, func(ctx context.Context, c *core.Core) error {
				cancel := c.Bus().Subscribe(func(e events.Event) { printEvent(out, e) })
				defer cancel()
				if callbacks {
					var root *mirror.Object
					if err := c.Do(ctx, func(c *core.Core) { root = c.Root() }); err != nil {
						return err
					}
					if root != nil {
						if err := c.AddObjectCallbacks(ctx, root); err != nil {
							return err
						}
					}
				}
				fmt.Fprintf(out, "watching %s (%d objects)\n", c.Identity(), objectCount(ctx, c))
				<-ctx.Done()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&callbacks, "callbacks", false, "register object callbacks on the root")
	return cmd
}

func printEvent(w io.Writer, e events.Event) {
	switch e.Type {
	case events.WaitingForMessage, events.MessageReceived:
		return
	case events.LogMessageReceived:
		if e.Log != nil {
			fmt.Fprintf(w, "%s %s: %s\n", e.Type, e.Log.LevelName, e.Log.Text)
		}
	case events.DispatchFailed:
		fmt.Fprintf(w, "%s id=%s err=%v\n", e.Type, e.MessageID, e.Err)
	default:
		line := string(e.Type)
		if e.Object != nil {
			line += " " + e.Object.String()
		}
		if e.Name != "" {
			line += " name=" + e.Name
		}
		if e.Value != nil {
			line += fmt.Sprintf(" value=%v", e.Value)
		}
		fmt.Fprintln(w, line)
	}
}

func objectCount(ctx context.Context, c *core.Core) int {
	var n int
	_ = c.Do(ctx, func(c *core.Core) { n = c.Objects() })
	return n
}

func newTreeCmd(opts *options) *cobra.Command {
	var format, path string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the object tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMirror(cmd.Context(), opts, func(ctx context.Context, c *core.Core) error {
				snap, err := snapshot(ctx, c, path)
				if err != nil {
					return err
				}
				return export.Encode(cmd.OutOrStdout(), snap, format)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", export.FormatJSON, "output format: json or yaml")
	cmd.Flags().StringVarP(&path, "path", "p", "", "print only the subtree at this name path")
	return cmd
}

func snapshot(ctx context.Context, c *core.Core, path string) (mirror.Snapshot, error) {
	var snap mirror.Snapshot
	var err error
	if doErr := c.Do(ctx, func(c *core.Core) {
		root := c.Root()
		if root == nil {
			err = ErrNoTree
			return
		}
		obj := root
		if strings.Trim(path, "/") != "" {
			var ok bool
			if obj, ok = c.ResolvePath(path); !ok {
				err = fmt.Errorf("%w: %s", ErrNoSuchPath, path)
				return
			}
		}
		snap = obj.Snapshot()
	}); doErr != nil {
		return mirror.Snapshot{}, doErr
	}
	return snap, err
}

func newTypesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "types [components|operators|data]",
		Short:     "List the advertised types, or the instantiable types of one kind",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"components", "operators", "data"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := ""
			if len(args) == 1 {
				kind = args[0]
			}
			out := cmd.OutOrStdout()
			return withMirror(cmd.Context(), opts, func(ctx context.Context, c *core.Core) error {
				var lines []string
				var err error
				if doErr := c.Do(ctx, func(c *core.Core) { lines, err = typeLines(c, kind) }); doErr != nil {
					return doErr
				}
				if err != nil {
					return err
				}
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
}

func typeLines(c *core.Core, kind string) ([]string, error) {
	var lines []string
	switch kind {
	case "":
		for _, d := range c.Types() {
			line := d.Name
			if len(d.BaseTypes) > 0 {
				line += " : " + strings.Join(d.BaseTypes, ", ")
			}
			if d.Instantiable {
				line += " [instantiable]"
			}
			lines = append(lines, line)
		}
	case "components":
		for name := range c.ComponentTypes() {
			lines = append(lines, name)
		}
	case "operators":
		for name := range c.OperatorTypes() {
			lines = append(lines, name)
		}
	case "data":
		for name := range c.DataTypes() {
			lines = append(lines, name)
		}
	default:
		return nil, fmt.Errorf("%w: got %q", ErrKind, kind)
	}
	return lines, nil
}

func newServeCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Mirror the graph and serve the HTTP inspector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Inspector.Addr = addr
			}
			m, err := openMirror(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return m.run(cmd.Context(), func(ctx context.Context, c *core.Core) error {
				if err := c.LoadModuleInfo(ctx); err != nil {
					return fmt.Errorf("load module info: %w", err)
				}
				srv := inspect.New(c, inspect.Config{
					Addr:        cfg.Inspector.Addr,
					CorsOrigins: cfg.Inspector.CorsOrigins,
					Token:       cfg.Inspector.Token,
				})
				return srv.Serve(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "inspector listen address")
	return cmd
}
