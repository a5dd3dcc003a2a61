package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/napmirror/internal/testutil/testlog"
	"gopkg.in/yaml.v3"
)

const sampleTree = `{"type":"nap::Entity","name":"root","children":[{"type":"nap::Component","name":"c"}]}`

func TestClipboardIndentsWithFourSpaces(t *testing.T) {
	testlog.Start(t)
	var got string
	old := clipboardWriteAll
	clipboardWriteAll = func(s string) error {
		got = s
		return nil
	}
	defer func() { clipboardWriteAll = old }()

	if err := (Clipboard{}).Export(context.Background(), json.RawMessage(sampleTree)); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(got, "\n    \"type\": \"nap::Entity\"") {
		t.Fatalf("expected four-space indent, got:\n%s", got)
	}
}

func TestClipboardReportsWriteFailure(t *testing.T) {
	testlog.Start(t)
	old := clipboardWriteAll
	clipboardWriteAll = func(string) error { return errors.New("no display") }
	defer func() { clipboardWriteAll = old }()

	if err := (Clipboard{}).Export(context.Background(), json.RawMessage(sampleTree)); err == nil {
		t.Fatalf("expected clipboard failure")
	}
	if err := (Clipboard{}).Export(context.Background(), nil); !errors.Is(err, ErrEmptyTree) {
		t.Fatalf("expected ErrEmptyTree, got %v", err)
	}
}

func TestFileWritesYAML(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	f, err := NewFile(dir, "yaml")
	if err != nil {
		t.Fatalf("new file exporter: %v", err)
	}
	f.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	if err := f.Export(context.Background(), json.RawMessage(sampleTree)); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "tree-20260102T030405.000000000.yaml"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var doc struct {
		Name     string `yaml:"name"`
		Children []struct {
			Type string `yaml:"type"`
		} `yaml:"children"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if doc.Name != "root" || len(doc.Children) != 1 || doc.Children[0].Type != "nap::Component" {
		t.Fatalf("unexpected yaml document: %+v", doc)
	}
}

func TestNewSelectsExporter(t *testing.T) {
	testlog.Start(t)
	cases := map[string]any{
		"":          Clipboard{},
		"clipboard": Clipboard{},
		"none":      Discard{},
	}
	for mode, want := range cases {
		got, err := New(Config{Mode: mode})
		if err != nil {
			t.Fatalf("mode %q: %v", mode, err)
		}
		if got != want {
			t.Fatalf("mode %q: got %T", mode, got)
		}
	}
	if _, err := New(Config{Mode: "printer"}); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
	if _, err := New(Config{Mode: "file", Format: "xml"}); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestEncodeJSON(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := Encode(&buf, map[string]int{"ptr": 1}, "json"); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.String() != "{\n    \"ptr\": 1\n}\n" {
		t.Fatalf("unexpected json: %q", buf.String())
	}
}
