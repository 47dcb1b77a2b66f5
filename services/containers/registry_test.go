package containers

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func TestNewRegistryDefaults(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	for _, id := range []string{"ga4", "fbp", "gtm"} {
		spec, ok := registry.Kind(id)
		if !ok {
			t.Fatalf("kind %q not registered", id)
		}
		if len(spec.Fields) == 0 {
			t.Fatalf("kind %q has no fields", id)
		}
		tpl, err := registry.Template(id)
		if err != nil {
			t.Fatalf("Template(%q) error = %v", id, err)
		}
		for _, fld := range spec.Fields {
			if !strings.Contains(string(tpl), fld.Placeholder) {
				t.Errorf("kind %q template lacks placeholder %s", id, fld.Placeholder)
			}
		}
	}

	if _, ok := registry.Kind("nope"); ok {
		t.Fatal("unregistered kind resolved")
	}
	if _, err := registry.Template("nope"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Template(nope) error = %v, want ErrUnknownKind", err)
	}
}

func TestNewRegistryFieldOrderPreserved(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	spec, _ := registry.Kind("fbp")
	if spec.Fields[0].Name != "pixel_id" || spec.Fields[1].Name != "events" {
		t.Fatalf("field order = %+v", spec.Fields)
	}
	if spec.Fields[1].Encoding != EncodingJSONList {
		t.Fatalf("events encoding = %q", spec.Fields[1].Encoding)
	}
}

func TestNewRegistryKindsOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"kinds.yaml": {Data: []byte(`
kinds:
  - id: b
    template: b.json
    fields:
      - name: x
        placeholder: __X__
  - id: a
    template: a.json
    fields:
      - name: y
        placeholder: __Y__
`)},
		"a.json": {Data: []byte(`{"y":"__Y__"}`)},
		"b.json": {Data: []byte(`{"x":"__X__"}`)},
	}

	registry, err := NewRegistryFS(fsys)
	if err != nil {
		t.Fatalf("NewRegistryFS() error = %v", err)
	}

	kinds := registry.Kinds()
	if len(kinds) != 2 || kinds[0].ID != "b" || kinds[1].ID != "a" {
		t.Fatalf("Kinds() = %+v, want manifest order", kinds)
	}
}

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		extra    map[string]*fstest.MapFile
	}{
		{
			name:     "missing id",
			manifest: "kinds:\n  - template: t.json\n    fields:\n      - name: x\n        placeholder: __X__\n",
			extra:    map[string]*fstest.MapFile{"t.json": {Data: []byte("{}")}},
		},
		{
			name:     "duplicate kind",
			manifest: "kinds:\n  - id: a\n    template: t.json\n    fields:\n      - name: x\n        placeholder: __X__\n  - id: a\n    template: t.json\n    fields:\n      - name: x\n        placeholder: __X__\n",
			extra:    map[string]*fstest.MapFile{"t.json": {Data: []byte("{}")}},
		},
		{
			name:     "missing placeholder",
			manifest: "kinds:\n  - id: a\n    template: t.json\n    fields:\n      - name: x\n",
			extra:    map[string]*fstest.MapFile{"t.json": {Data: []byte("{}")}},
		},
		{
			name:     "unknown encoding",
			manifest: "kinds:\n  - id: a\n    template: t.json\n    fields:\n      - name: x\n        placeholder: __X__\n        encoding: base64\n",
			extra:    map[string]*fstest.MapFile{"t.json": {Data: []byte("{}")}},
		},
		{
			name:     "template absent",
			manifest: "kinds:\n  - id: a\n    template: gone.json\n    fields:\n      - name: x\n        placeholder: __X__\n",
		},
		{
			name:     "no kinds",
			manifest: "kinds: []\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{"kinds.yaml": {Data: []byte(tt.manifest)}}
			for name, file := range tt.extra {
				fsys[name] = file
			}
			if _, err := NewRegistryFS(fsys); err == nil {
				t.Fatal("NewRegistryFS() succeeded, want error")
			}
		})
	}
}

func TestNewRegistryDefaultsApplied(t *testing.T) {
	fsys := fstest.MapFS{
		"kinds.yaml": {Data: []byte(`
kinds:
  - id: a
    template: a.json
    fields:
      - name: x
        placeholder: __X__
`)},
		"a.json": {Data: []byte(`{"x":"__X__"}`)},
	}

	registry, err := NewRegistryFS(fsys)
	if err != nil {
		t.Fatalf("NewRegistryFS() error = %v", err)
	}

	spec, _ := registry.Kind("a")
	if spec.ContentType != "application/json" {
		t.Fatalf("ContentType = %q", spec.ContentType)
	}
	if spec.Filename != "a-container.json" {
		t.Fatalf("Filename = %q", spec.Filename)
	}
	if spec.Fields[0].Encoding != EncodingRaw {
		t.Fatalf("Encoding = %q", spec.Fields[0].Encoding)
	}
}
