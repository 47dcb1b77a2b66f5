package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"tagforge/pkg/bus"
	"tagforge/services/containers"
)

const (
	completedSubject = "tagforge.orders.completed"
	processedSubject = "tagforge.orders.processed"
	durableName      = "tagforge-orders"

	auditActor = "orders"
)

// Generator produces a container for one line item.
type Generator interface {
	Generate(ctx context.Context, kindID string, fields map[string]string, orderID int64) (containers.Container, error)
}

// Saver persists a generated container as order metadata.
type Saver interface {
	Save(ctx context.Context, c containers.Container, actor string) error
}

// LinkMinter builds a signed download URL for a container.
type LinkMinter interface {
	MintURL(base string, c containers.Container, orderID int64) (string, error)
}

// Publisher emits JSON events; *bus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// Consumer processes order-completed events: it generates a container per
// line item, persists the descriptors, and publishes a per-item result
// summary. Item failures are collected, not fatal.
type Consumer struct {
	bus     *bus.Bus
	events  Publisher
	gen     Generator
	meta    Saver
	minter  LinkMinter
	baseURL string
	logger  *log.Logger

	subMu sync.Mutex
	sub   io.Closer
}

// NewConsumer constructs a Consumer for the provided dependencies.
func NewConsumer(b *bus.Bus, gen Generator, meta Saver, minter LinkMinter, baseURL string, logger *log.Logger) (*Consumer, error) {
	if b == nil {
		return nil, errors.New("bus is required")
	}
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if meta == nil {
		return nil, errors.New("metadata store is required")
	}
	if minter == nil {
		return nil, errors.New("link minter is required")
	}
	if baseURL == "" {
		return nil, errors.New("base url is required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Consumer{
		bus:     b,
		events:  b,
		gen:     gen,
		meta:    meta,
		minter:  minter,
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

// Start subscribes to order-completed events and processes them until ctx
// is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c == nil {
		return errors.New("nil consumer")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	sub, err := c.bus.Subscribe(ctx, completedSubject, durableName, c.handleOrder)
	if err != nil {
		return err
	}

	c.subMu.Lock()
	c.sub = sub
	c.subMu.Unlock()

	return nil
}

// Close stops the underlying subscription if it was created.
func (c *Consumer) Close() error {
	if c == nil {
		return nil
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.sub == nil {
		return nil
	}
	err := c.sub.Close()
	c.sub = nil
	return err
}

// handleOrder returns an error only for events that can never be processed
// correctly (malformed payloads), which Naks them for redelivery review.
// Valid events are always acknowledged, even when items inside them failed:
// re-running generation for the whole order would mint duplicate artifacts.
func (c *Consumer) handleOrder(ctx context.Context, data []byte) error {
	var evt CompletedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("decode order event: %w", err)
	}
	if evt.OrderID <= 0 {
		return errors.New("order_id missing from event")
	}

	results := c.processOrder(ctx, evt)

	summary := ProcessedEvent{OrderID: evt.OrderID, Results: results}
	if err := c.events.Publish(ctx, processedSubject, summary); err != nil {
		c.logger.Printf("WARN publish results for order %d: %v", evt.OrderID, err)
	}

	return nil
}

func (c *Consumer) processOrder(ctx context.Context, evt CompletedEvent) []ItemResult {
	results := make([]ItemResult, 0, len(evt.Items))

	for _, item := range evt.Items {
		container, err := c.gen.Generate(ctx, item.Kind, item.Fields, evt.OrderID)
		if err != nil {
			c.logger.Printf("ERROR generate kind=%s order=%d: %v", item.Kind, evt.OrderID, err)
			results = append(results, ItemResult{Kind: item.Kind, Error: err.Error()})
			continue
		}

		if err := c.meta.Save(ctx, container, auditActor); err != nil {
			c.logger.Printf("ERROR persist container order=%d kind=%s: %v", evt.OrderID, item.Kind, err)
			results = append(results, ItemResult{Kind: item.Kind, Error: err.Error()})
			continue
		}

		link, err := c.minter.MintURL(c.baseURL, container, evt.OrderID)
		if err != nil {
			// The artifact exists and is persisted; a link can be re-minted
			// later, so this is not an item failure.
			c.logger.Printf("WARN mint link order=%d kind=%s: %v", evt.OrderID, item.Kind, err)
		}

		results = append(results, ItemResult{
			Kind:        item.Kind,
			ContainerID: container.ID.String(),
			Location:    container.Location,
			DownloadURL: link,
		})
	}

	return results
}
