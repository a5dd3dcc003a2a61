package mirror

import (
	"errors"
	"testing"

	"github.com/danmuck/napmirror/internal/catalog"
	"github.com/danmuck/napmirror/internal/kinds"
	"github.com/danmuck/napmirror/internal/protocol"
	"github.com/danmuck/napmirror/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

const sampleTree = `{
	"type": "nap::Entity", "ptr": 1, "name": "root",
	"children": [
		{"type": "nap::Entity", "ptr": 2, "name": "camera", "children": [
			{"type": "nap::PerspCameraComponent", "ptr": 3, "name": "lens", "fov": 45, "children": [
				{"type": "nap::Attribute<float>", "ptr": 4, "name": "fov", "valueType": "float", "value": "45"},
				{"type": "nap::Attribute<bool>", "ptr": 5, "name": "enabled", "valueType": "bool", "value": "true"}
			]}
		]},
		{"type": "nap::Mystery", "ptr": 6, "name": "unknown"}
	]
}`

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	types := catalog.New()
	types.ReplaceAll([]catalog.Descriptor{
		{Name: "nap::PerspCameraComponent", BaseTypes: []string{kinds.TypeComponent, kinds.TypeObject}, Instantiable: true},
	})
	c := kinds.Default()
	f, err := NewFactory(c, kinds.NewResolver(c, types))
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	return f
}

func TestBuildTree(t *testing.T) {
	testlog.Start(t)
	root, err := newTestFactory(t).BuildJSON([]byte(sampleTree))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !root.Is(kinds.CapEntity) || root.Handle != 1 {
		t.Fatalf("unexpected root: %v", root)
	}

	lens, ok := root.ResolvePath("/camera/lens")
	if !ok {
		t.Fatalf("resolve path failed")
	}
	if !lens.Type.Synthesized || lens.Type.BasisID() != kinds.KindComponent {
		t.Fatalf("expected component-backed metatype, got %v", lens.Type)
	}
	if string(lens.Fields["fov"]) != "45" {
		t.Fatalf("kind-specific field lost under metatype: %v", lens.Fields)
	}
	if lens.ParentHandle() != 2 {
		t.Fatalf("unexpected parent handle: %s", lens.ParentHandle())
	}

	fov, _ := lens.Child("fov")
	if !fov.IsAttribute() || fov.Value != 45.0 {
		t.Fatalf("unexpected fov attribute: %+v", fov)
	}
	enabled, _ := root.ResolvePath("camera/lens/enabled")
	if enabled.Value != true || enabled.FormattedValue() != "true" {
		t.Fatalf("unexpected bool attribute: %+v", enabled)
	}

	unknown, _ := root.Child("unknown")
	if unknown.Type.BasisID() != kinds.KindObject {
		t.Fatalf("unknown type should fall back to object, got %v", unknown.Type)
	}
}

func TestBuildRejectsBadAttributeValue(t *testing.T) {
	testlog.Start(t)
	_, err := newTestFactory(t).BuildJSON([]byte(`{"type":"nap::Attribute<bool>","ptr":9,"valueType":"bool","value":"maybe"}`))
	if !errors.Is(err, protocol.ErrValueCoercion) {
		t.Fatalf("expected ErrValueCoercion, got %v", err)
	}
}

func TestBuildRequiresType(t *testing.T) {
	testlog.Start(t)
	_, err := newTestFactory(t).BuildJSON([]byte(`{"ptr":9,"name":"x"}`))
	if !errors.Is(err, protocol.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestAttributeSpecialCaseSkipsResolver(t *testing.T) {
	testlog.Start(t)
	f := newTestFactory(t)
	obj, err := f.BuildJSON([]byte(`{"type":"nap::Entity","ptr":9,"valueType":"int","value":"3"}`))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !obj.IsAttribute() || obj.Is(kinds.CapEntity) || obj.Value != int64(3) {
		t.Fatalf("value-type marker must force attribute kind: %+v", obj)
	}
	if f.resolver.Metatypes() != 0 {
		t.Fatalf("attribute construction should not synthesize metatypes")
	}
}

func TestChildOrderAndRemoval(t *testing.T) {
	testlog.Start(t)
	parent := &Object{Handle: 1, Name: "p"}
	a := &Object{Handle: 2, Name: "a"}
	b := &Object{Handle: 3, Name: "b"}
	c := &Object{Handle: 4, Name: "c"}
	parent.AddChild(a)
	parent.AddChild(b)
	parent.AddChild(c)

	if !parent.RemoveChild(b) {
		t.Fatalf("remove existing child failed")
	}
	if parent.RemoveChild(b) {
		t.Fatalf("second removal should report false")
	}
	if b.ParentHandle() != protocol.NoHandle {
		t.Fatalf("detached child should drop its back-reference")
	}
	var names []string
	for _, child := range parent.Children() {
		names = append(names, child.Name)
	}
	if diff := cmp.Diff([]string{"a", "c"}, names); diff != "" {
		t.Fatalf("insertion order not kept (-want +got):\n%s", diff)
	}
}

func TestParentOfSearchesByIdentity(t *testing.T) {
	testlog.Start(t)
	root := &Object{Name: "root"}
	group := &Object{Name: "group"}
	leaf := &Object{Handle: 7, Name: "leaf"}
	stray := &Object{Handle: 8, Name: "stray"}
	root.AddChild(group)
	group.AddChild(leaf)

	if p, ok := root.ParentOf(leaf); !ok || p != group {
		t.Fatalf("expected group, got %v ok=%v", p, ok)
	}
	if p, ok := root.ParentOf(group); !ok || p != root {
		t.Fatalf("expected root, got %v ok=%v", p, ok)
	}
	if _, ok := root.ParentOf(stray); ok {
		t.Fatalf("object outside the tree has no parent")
	}
	if _, ok := root.ParentOf(root); ok {
		t.Fatalf("root has no parent under itself")
	}
}

func TestSnapshot(t *testing.T) {
	testlog.Start(t)
	root, err := newTestFactory(t).BuildJSON([]byte(sampleTree))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	lens, _ := root.ResolvePath("/camera/lens")
	got := lens.Snapshot()
	want := Snapshot{
		Ptr: 3, Name: "lens", Type: "nap::PerspCameraComponent", Basis: kinds.KindComponent, Metatype: true,
		Children: []Snapshot{
			{Ptr: 4, Name: "fov", Type: "nap::Attribute<float>", Basis: kinds.KindAttribute, ValueType: "float", Value: "45"},
			{Ptr: 5, Name: "enabled", Type: "nap::Attribute<bool>", Basis: kinds.KindAttribute, ValueType: "bool", Value: "true"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}
