// Package export hands serialized object trees to a destination outside the
// mirror: the system clipboard, a file, or nowhere.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownMode   = errors.New("export: unknown mode")
	ErrUnknownFormat = errors.New("export: unknown format")
	ErrEmptyTree     = errors.New("export: empty tree")
)

// Modes and formats accepted by New.
const (
	ModeClipboard = "clipboard"
	ModeFile      = "file"
	ModeNone      = "none"

	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Package var so tests can replace the system clipboard.
var clipboardWriteAll = clipboard.WriteAll

// Exporter receives a copied object tree.
type Exporter interface {
	Export(ctx context.Context, tree json.RawMessage) error
}

type Config struct {
	Mode   string
	Dir    string
	Format string
}

func New(cfg Config) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", ModeClipboard:
		return Clipboard{}, nil
	case ModeFile:
		return NewFile(cfg.Dir, cfg.Format)
	case ModeNone:
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

// Clipboard places the tree on the clipboard as JSON indented by four spaces.
type Clipboard struct{}

func (Clipboard) Export(_ context.Context, tree json.RawMessage) error {
	if len(bytes.TrimSpace(tree)) == 0 {
		return ErrEmptyTree
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, tree, "", "    "); err != nil {
		return fmt.Errorf("export: indent tree: %w", err)
	}
	if err := clipboardWriteAll(buf.String()); err != nil {
		return fmt.Errorf("export: clipboard: %w", err)
	}
	log.Info().Int("bytes", buf.Len()).Msg("export: copied object tree to clipboard")
	return nil
}

// File writes each tree to a new timestamped file under Dir.
type File struct {
	Dir    string
	Format string

	now func() time.Time
}

func NewFile(dir, format string) (*File, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatYAML {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return &File{Dir: dir, Format: format, now: time.Now}, nil
}

func (f *File) Export(ctx context.Context, tree json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(bytes.TrimSpace(tree)) == 0 {
		return ErrEmptyTree
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("export: create dir: %w", err)
	}
	name := fmt.Sprintf("tree-%s.%s", f.now().UTC().Format("20060102T150405.000000000"), f.Format)
	path := filepath.Join(f.Dir, name)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create file: %w", err)
	}
	if err := Encode(out, tree, f.Format); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("export: close file: %w", err)
	}
	log.Info().Str("path", path).Msg("export: wrote object tree")
	return nil
}

// Discard drops trees.
type Discard struct{}

func (Discard) Export(context.Context, json.RawMessage) error {
	return nil
}

// Encode writes v in format. A json.RawMessage is re-indented as is; for
// yaml it is decoded first so the output keeps the document's structure.
func Encode(w io.Writer, v any, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("export: encode json: %w", err)
		}
		return nil
	case FormatYAML:
		if raw, ok := v.(json.RawMessage); ok {
			var doc any
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("export: decode tree: %w", err)
			}
			v = doc
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("export: encode yaml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
