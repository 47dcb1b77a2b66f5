package containers

import (
	"errors"
	"io"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"tagforge/pkg/bus"
)

const generatedTopic = "tagforge.containers.generated"

// Config controls runtime behaviour for the API handlers.
type Config struct {
	// BaseURL is the externally reachable root under which download links
	// are minted, e.g. "https://downloads.example.com/".
	BaseURL string
	// Retention is how long generated containers stay downloadable.
	Retention time.Duration
	// StoreTimeout bounds content-store round trips per request.
	StoreTimeout time.Duration
}

// Store holds external dependencies required by the API layer. Content is
// mandatory; DB, ORM, and Bus are optional and the handlers that need them
// fail with a dependency error when absent.
type Store struct {
	DB      *pgxpool.Pool
	ORM     *gorm.DB
	Content ContentStore
	Bus     *bus.Bus
}

// API wires the registry, factory, token codec, and persistence behind the
// HTTP handlers.
type API struct {
	store    *Store
	registry *Registry
	factory  *Factory
	codec    *Codec
	meta     *Metadata
	config   Config
	logger   *log.Logger
}

// New initialises the API layer with defaults applied to the configuration.
func New(store *Store, registry *Registry, factory *Factory, codec *Codec, cfg Config, logger *log.Logger) (*API, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if store.Content == nil {
		return nil, errors.New("content store is required")
	}
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if factory == nil {
		return nil, errors.New("factory is required")
	}
	if codec == nil {
		return nil, errors.New("token codec is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	a := &API{
		store:    store,
		registry: registry,
		factory:  factory,
		codec:    codec,
		config:   cfg,
		logger:   logger,
	}

	if store.ORM != nil && store.DB != nil {
		meta, err := NewMetadata(store.ORM, store.DB)
		if err != nil {
			return nil, err
		}
		a.meta = meta
	}

	return a, nil
}

// linkExpired reports whether a persisted container is past its download
// window, on the same clock token validation uses. The boundary instant
// itself counts as expired.
func (a *API) linkExpired(c Container) bool {
	return !a.codec.now().Before(c.ExpiresAt)
}
