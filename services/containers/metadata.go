package containers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"tagforge/pkg/db"
)

// ErrContainerNotFound is returned when a persisted container cannot be
// resolved by id or order scope.
var ErrContainerNotFound = errors.New("container not found")

// Metadata persists container descriptors as order metadata. Writes go
// through gorm; the read side for listings uses pgx directly.
type Metadata struct {
	orm  *gorm.DB
	pool *pgxpool.Pool
}

// NewMetadata wires the metadata store. Both handles are required.
func NewMetadata(orm *gorm.DB, pool *pgxpool.Pool) (*Metadata, error) {
	if orm == nil {
		return nil, errors.New("orm handle is required")
	}
	if pool == nil {
		return nil, errors.New("pgx pool is required")
	}
	return &Metadata{orm: orm, pool: pool}, nil
}

// Save records a generated container against its order, with an audit row
// noting who generated it.
func (m *Metadata) Save(ctx context.Context, c Container, actor string) error {
	if m == nil {
		return errors.New("metadata store not configured")
	}

	model := modelFromContainer(c)
	err := db.WithTimeout(ctx, db.DefaultTimeout, func(ctx context.Context) error {
		return m.orm.WithContext(ctx).Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("persist container %s: %w", c.ID, err)
	}

	if actor == "" {
		actor = "system"
	}
	details, err := json.Marshal(map[string]any{
		"order_id":     c.OrderID,
		"kind":         c.Kind,
		"container_id": c.ID.String(),
	})
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, m.pool, `
INSERT INTO audit (actor, action, obj, details)
VALUES ($1, $2, $3, $4::jsonb)
`, actor, "container_generated", c.Location, details)
	if err != nil {
		return fmt.Errorf("audit container %s: %w", c.ID, err)
	}
	return nil
}

// ByOrder lists an order's containers, newest first.
func (m *Metadata) ByOrder(ctx context.Context, orderID int64) ([]Container, error) {
	if m == nil {
		return nil, errors.New("metadata store not configured")
	}

	var rows []containerRow
	err := db.Select(ctx, m.pool, &rows,
		`SELECT id, order_id, kind, location, public_url, content_type, expires_at, created_at
		 FROM containers WHERE order_id = $1 ORDER BY created_at DESC`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list containers for order %d: %w", orderID, err)
	}

	out := make([]Container, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toAPI())
	}
	return out, nil
}

// ByID fetches one persisted container scoped to an order. A container that
// exists under another order is reported as not found, never as a different
// error, so the endpoint cannot be used to probe foreign orders.
func (m *Metadata) ByID(ctx context.Context, id uuid.UUID, orderID int64) (Container, error) {
	if m == nil {
		return Container{}, errors.New("metadata store not configured")
	}

	var model containerModel
	err := db.WithTimeout(ctx, db.DefaultTimeout, func(ctx context.Context) error {
		return m.orm.WithContext(ctx).First(&model, "id = ? AND order_id = ?", id, orderID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Container{}, ErrContainerNotFound
		}
		return Container{}, fmt.Errorf("fetch container %s: %w", id, err)
	}
	return model.toAPI(), nil
}

// containerRow mirrors the listing projection for pgx scanning.
type containerRow struct {
	ID          uuid.UUID `db:"id"`
	OrderID     int64     `db:"order_id"`
	Kind        string    `db:"kind"`
	Location    string    `db:"location"`
	PublicURL   string    `db:"public_url"`
	ContentType string    `db:"content_type"`
	ExpiresAt   time.Time `db:"expires_at"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r containerRow) toAPI() Container {
	return Container{
		ID:          r.ID,
		OrderID:     r.OrderID,
		Kind:        r.Kind,
		Location:    r.Location,
		PublicURL:   r.PublicURL,
		ContentType: r.ContentType,
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
	}
}
