package containers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultRetention    = 7 * 24 * time.Hour
	defaultStoreTimeout = 5 * time.Second
)

// ContentStore is the byte-storage abstraction holding generated container
// files, addressed by an opaque location key. It must offer read-after-write
// consistency for the factory's post-write verification to be meaningful.
type ContentStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Factory generates container files from kind templates and customer field
// values. Generation is synchronous, one artifact per call, no retries: a
// failed write is surfaced immediately and the caller decides continuation.
type Factory struct {
	registry     *Registry
	store        ContentStore
	retention    time.Duration
	storeTimeout time.Duration
	now          func() time.Time
}

// FactoryConfig tunes a Factory. Zero values fall back to defaults.
type FactoryConfig struct {
	// Retention controls how long generated containers stay downloadable.
	Retention time.Duration
	// StoreTimeout bounds each content-store round trip.
	StoreTimeout time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewFactory constructs a Factory over the given registry and content store.
func NewFactory(registry *Registry, store ContentStore, cfg FactoryConfig) (*Factory, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Factory{
		registry:     registry,
		store:        store,
		retention:    cfg.Retention,
		storeTimeout: cfg.StoreTimeout,
		now:          cfg.Now,
	}, nil
}

// Retention returns the configured downloadability window.
func (f *Factory) Retention() time.Duration {
	if f == nil {
		return 0
	}
	return f.retention
}

// Generate validates fields against the kind's requirements, substitutes the
// template's placeholders, writes the result to the content store under a
// key unique to this call, verifies the write, and returns the container
// descriptor. A timed-out write is reported as a persist failure.
func (f *Factory) Generate(ctx context.Context, kindID string, fields map[string]string, orderID int64) (Container, error) {
	spec, ok := f.registry.Kind(kindID)
	if !ok {
		generationsTotal.WithLabelValues(kindID, "input_error").Inc()
		return Container{}, fmt.Errorf("%w: %s", ErrUnknownKind, kindID)
	}

	// Required fields are checked in declared order so the first missing
	// field reported is deterministic.
	for _, fld := range spec.Fields {
		if strings.TrimSpace(fields[fld.Name]) == "" {
			generationsTotal.WithLabelValues(kindID, "input_error").Inc()
			return Container{}, &MissingFieldError{Field: fld.Name}
		}
	}

	tpl, err := f.registry.Template(kindID)
	if err != nil {
		generationsTotal.WithLabelValues(kindID, "resource_error").Inc()
		return Container{}, err
	}

	data, err := substitute(tpl, spec, fields)
	if err != nil {
		generationsTotal.WithLabelValues(kindID, "input_error").Inc()
		return Container{}, err
	}

	id := uuid.New()
	key := fmt.Sprintf("containers/%s/%d/%s.json", spec.ID, orderID, id)
	now := f.now().UTC()
	expiresAt := now.Add(f.retention)

	putCtx, cancel := context.WithTimeout(ctx, f.storeTimeout)
	err = f.store.Put(putCtx, key, data, spec.ContentType)
	cancel()
	if err != nil {
		generationsTotal.WithLabelValues(kindID, "resource_error").Inc()
		return Container{}, fmt.Errorf("%w: write %s: %v", ErrPersistFailure, key, err)
	}

	headCtx, cancel := context.WithTimeout(ctx, f.storeTimeout)
	exists, err := f.store.Exists(headCtx, key)
	cancel()
	if err != nil || !exists {
		generationsTotal.WithLabelValues(kindID, "resource_error").Inc()
		return Container{}, fmt.Errorf("%w: verify %s: not retrievable after write (%v)", ErrPersistFailure, key, err)
	}

	publicURL, err := f.store.PresignGet(ctx, key, f.retention)
	if err != nil {
		generationsTotal.WithLabelValues(kindID, "resource_error").Inc()
		return Container{}, fmt.Errorf("presign public url for %s: %w", key, err)
	}

	generationsTotal.WithLabelValues(kindID, "ok").Inc()

	return Container{
		ID:          id,
		OrderID:     orderID,
		Kind:        spec.ID,
		Location:    key,
		PublicURL:   publicURL,
		ContentType: spec.ContentType,
		Fields:      fields,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}, nil
}

// substitute performs exact literal placeholder replacement. Placeholders
// with no declared field are left untouched.
func substitute(tpl []byte, spec KindSpec, fields map[string]string) ([]byte, error) {
	out := string(tpl)
	for _, fld := range spec.Fields {
		encoded, err := encodeField(fields[fld.Name], fld.Encoding)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidFieldValue, fld.Name, err)
		}
		out = strings.ReplaceAll(out, fld.Placeholder, encoded)
	}
	return []byte(out), nil
}

func encodeField(value string, enc FieldEncoding) (string, error) {
	switch enc {
	case EncodingRaw, "":
		return value, nil
	case EncodingJSONString:
		quoted, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(quoted[1 : len(quoted)-1]), nil
	case EncodingJSONList:
		items, err := parseList(value)
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(items)
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unknown encoding %q", enc)
	}
}

// parseList accepts either a JSON string array or a comma-separated list.
func parseList(value string) ([]string, error) {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "[") {
		var items []string
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, fmt.Errorf("not a JSON string array: %v", err)
		}
		return items, nil
	}

	parts := strings.Split(trimmed, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			items = append(items, p)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	return items, nil
}
