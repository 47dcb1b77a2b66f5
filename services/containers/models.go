package containers

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Container describes one generated container file: where it lives, the
// presentational public URL, and until when it remains downloadable. The
// descriptor itself carries no authority; download access comes only from a
// signed token derived from it.
type Container struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	OrderID     int64             `json:"order_id" db:"order_id"`
	Kind        string            `json:"kind" db:"kind"`
	Location    string            `json:"location" db:"location"`
	PublicURL   string            `json:"public_url" db:"public_url"`
	ContentType string            `json:"content_type" db:"content_type"`
	Fields      map[string]string `json:"fields" db:"-"`
	ExpiresAt   time.Time         `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

type containerModel struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	OrderID     int64             `gorm:"type:bigint;not null;index"`
	Kind        string            `gorm:"type:text;not null"`
	Location    string            `gorm:"type:text;uniqueIndex;not null"`
	PublicURL   string            `gorm:"type:text;not null"`
	ContentType string            `gorm:"type:text;not null"`
	Fields      datatypes.JSONMap `gorm:"type:jsonb"`
	ExpiresAt   time.Time         `gorm:"type:timestamptz;not null"`
	CreatedAt   time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (containerModel) TableName() string { return "containers" }

func (m containerModel) toAPI() Container {
	return Container{
		ID:          m.ID,
		OrderID:     m.OrderID,
		Kind:        m.Kind,
		Location:    m.Location,
		PublicURL:   m.PublicURL,
		ContentType: m.ContentType,
		Fields:      stringMapFromJSONMap(m.Fields),
		ExpiresAt:   m.ExpiresAt,
		CreatedAt:   m.CreatedAt,
	}
}

func modelFromContainer(c Container) containerModel {
	return containerModel{
		ID:          c.ID,
		OrderID:     c.OrderID,
		Kind:        c.Kind,
		Location:    c.Location,
		PublicURL:   c.PublicURL,
		ContentType: c.ContentType,
		Fields:      jsonMapFromStringMap(c.Fields),
		ExpiresAt:   c.ExpiresAt,
		CreatedAt:   c.CreatedAt,
	}
}

func jsonMapFromStringMap(src map[string]string) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range src {
		out[k] = v
	}
	return out
}

func stringMapFromJSONMap(src datatypes.JSONMap) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
