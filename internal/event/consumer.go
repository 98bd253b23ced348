package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/kafka"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/service"
)

// Kafka topics for document lifecycle events consumed by the search API.
const (
	TopicDocumentUpserted = "marketplace.document.upserted"
	TopicDocumentDeleted  = "marketplace.document.deleted"
)

// DocumentEventData is the payload of an upsert event: where to index the
// document and its untransformed source fields.
type DocumentEventData struct {
	Index    string         `json:"index"`
	DocType  string         `json:"doc_type"`
	ID       string         `json:"id"`
	Document map[string]any `json:"document"`
}

// DocumentDeletedData is the payload of a delete event.
type DocumentDeletedData struct {
	Index string `json:"index"`
	ID    string `json:"id"`
}

// Consumer applies document lifecycle events to the search index, giving
// publishers the same mapping-driven transform as the HTTP ingestion path.
type Consumer struct {
	searchService *service.SearchService
	logger        *slog.Logger
}

// NewConsumer creates a new event consumer for the search API.
func NewConsumer(searchService *service.SearchService, logger *slog.Logger) *Consumer {
	return &Consumer{
		searchService: searchService,
		logger:        logger,
	}
}

// Handle processes a Kafka event based on its type. Unknown event types are
// logged and skipped so mixed-topic deployments cannot wedge the consumer.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicDocumentUpserted:
		return c.handleDocumentUpserted(ctx, event)
	case TopicDocumentDeleted:
		return c.handleDocumentDeleted(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleDocumentUpserted(ctx context.Context, event *pkgkafka.Event) error {
	var data DocumentEventData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal document.upserted data: %w", err)
	}

	if err := c.searchService.IndexDocument(ctx, data.Index, data.DocType, data.ID, data.Document); err != nil {
		return fmt.Errorf("index document from upserted event: %w", err)
	}

	c.logger.InfoContext(ctx, "indexed document from upserted event",
		slog.String("index", data.Index),
		slog.String("document_id", data.ID),
	)
	return nil
}

func (c *Consumer) handleDocumentDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data DocumentDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal document.deleted data: %w", err)
	}

	if err := c.searchService.DeleteDocument(ctx, data.Index, data.ID); err != nil {
		return fmt.Errorf("delete document from deleted event: %w", err)
	}

	c.logger.InfoContext(ctx, "deleted document from deleted event",
		slog.String("index", data.Index),
		slog.String("document_id", data.ID),
	)
	return nil
}
