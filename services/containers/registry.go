package containers

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed templates
var defaultTemplates embed.FS

const manifestName = "kinds.yaml"

// FieldEncoding selects how a field value is serialized before it replaces
// its placeholder in the template.
type FieldEncoding string

const (
	// EncodingRaw inserts the value verbatim.
	EncodingRaw FieldEncoding = "raw"
	// EncodingJSONString inserts the value JSON-escaped, without surrounding
	// quotes, for placement inside an already-quoted template string.
	EncodingJSONString FieldEncoding = "json_string"
	// EncodingJSONList parses the value as a JSON array or a comma-separated
	// list and inserts it as a JSON array literal.
	EncodingJSONList FieldEncoding = "json_list"
)

// FieldSpec declares one required input field of a kind and the literal
// placeholder marker it replaces.
type FieldSpec struct {
	Name        string        `yaml:"name"`
	Placeholder string        `yaml:"placeholder"`
	Encoding    FieldEncoding `yaml:"encoding"`
}

// KindSpec is the static definition of a generatable container kind. Kinds
// are configuration data: adding one is a manifest change, not a code change.
type KindSpec struct {
	ID          string      `yaml:"id"`
	Template    string      `yaml:"template"`
	ContentType string      `yaml:"content_type"`
	Filename    string      `yaml:"filename"`
	Fields      []FieldSpec `yaml:"fields"`
}

type manifest struct {
	Kinds []KindSpec `yaml:"kinds"`
}

// Registry maps container kinds to their templates and required fields. It
// is loaded once at startup and immutable afterwards.
type Registry struct {
	kinds map[string]KindSpec
	order []string
	fsys  fs.FS
}

// NewRegistry loads the kind manifest and templates embedded in the binary.
func NewRegistry() (*Registry, error) {
	sub, err := fs.Sub(defaultTemplates, "templates")
	if err != nil {
		return nil, fmt.Errorf("prepare embedded templates: %w", err)
	}
	return NewRegistryFS(sub)
}

// NewRegistryFromDir loads the kind manifest and templates from a directory
// on disk, overriding the embedded defaults.
func NewRegistryFromDir(dir string) (*Registry, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("kinds directory: %w", err)
	}
	return NewRegistryFS(os.DirFS(dir))
}

// NewRegistryFS loads a registry from any filesystem containing kinds.yaml
// and the template documents it references.
func NewRegistryFS(fsys fs.FS) (*Registry, error) {
	raw, err := fs.ReadFile(fsys, manifestName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", manifestName, err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestName, err)
	}
	if len(m.Kinds) == 0 {
		return nil, fmt.Errorf("%s declares no kinds", manifestName)
	}

	r := &Registry{
		kinds: make(map[string]KindSpec, len(m.Kinds)),
		order: make([]string, 0, len(m.Kinds)),
		fsys:  fsys,
	}

	for i := range m.Kinds {
		spec := m.Kinds[i]
		if spec.ID == "" {
			return nil, fmt.Errorf("kind %d: id is required", i)
		}
		if _, dup := r.kinds[spec.ID]; dup {
			return nil, fmt.Errorf("kind %q declared twice", spec.ID)
		}
		if spec.Template == "" {
			return nil, fmt.Errorf("kind %q: template is required", spec.ID)
		}
		if spec.ContentType == "" {
			spec.ContentType = "application/json"
		}
		if spec.Filename == "" {
			spec.Filename = spec.ID + "-container.json"
		}
		if len(spec.Fields) == 0 {
			return nil, fmt.Errorf("kind %q: at least one field is required", spec.ID)
		}
		for j := range spec.Fields {
			fld := &spec.Fields[j]
			if fld.Name == "" || fld.Placeholder == "" {
				return nil, fmt.Errorf("kind %q field %d: name and placeholder are required", spec.ID, j)
			}
			if fld.Encoding == "" {
				fld.Encoding = EncodingRaw
			}
			switch fld.Encoding {
			case EncodingRaw, EncodingJSONString, EncodingJSONList:
			default:
				return nil, fmt.Errorf("kind %q field %q: unknown encoding %q", spec.ID, fld.Name, fld.Encoding)
			}
		}

		// Templates are resolved eagerly so a missing document fails at
		// startup, not on the first order that needs it.
		if _, err := fs.Stat(fsys, spec.Template); err != nil {
			return nil, fmt.Errorf("kind %q: template %q: %w", spec.ID, spec.Template, err)
		}

		r.kinds[spec.ID] = spec
		r.order = append(r.order, spec.ID)
	}

	return r, nil
}

// Kind returns the spec registered under id.
func (r *Registry) Kind(id string) (KindSpec, bool) {
	if r == nil {
		return KindSpec{}, false
	}
	spec, ok := r.kinds[id]
	return spec, ok
}

// Kinds returns all registered kinds in manifest order.
func (r *Registry) Kinds() []KindSpec {
	if r == nil {
		return nil
	}
	out := make([]KindSpec, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.kinds[id])
	}
	return out
}

// Template resolves a kind to its template bytes. The registry performs no
// substitution.
func (r *Registry) Template(id string) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil registry")
	}
	spec, ok := r.kinds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, id)
	}
	data, err := fs.ReadFile(r.fsys, spec.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: kind %s: %v", ErrTemplateUnavailable, id, err)
	}
	return data, nil
}
