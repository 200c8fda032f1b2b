// Package mongo provides the MongoDB event archive. The dispatcher records
// every delivered escrow event here for audit queries; the financial system
// of record stays in PostgreSQL.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

const (
	// EventArchiveCollectionName is the name of the archive collection
	EventArchiveCollectionName = "escrow_events"
)

// ArchivedEvent is one delivered escrow event with its delivery metadata
type ArchivedEvent struct {
	EventID       uuid.UUID        `bson:"event_id" json:"event_id"`
	EscrowID      uuid.UUID        `bson:"escrow_id" json:"escrow_id"`
	Type          shared.EventType `bson:"type" json:"type"`
	Recipients    []uuid.UUID      `bson:"recipients" json:"recipients"`
	Amount        int64            `bson:"amount" json:"amount"`
	Detail        string           `bson:"detail,omitempty" json:"detail,omitempty"`
	CorrelationID string           `bson:"correlation_id,omitempty" json:"correlation_id,omitempty"`
	OccurredAt    time.Time        `bson:"occurred_at" json:"occurred_at"`
	DeliveredAt   time.Time        `bson:"delivered_at" json:"delivered_at"`
}

// ArchiveRepository stores and queries delivered escrow events
type ArchiveRepository interface {
	Record(ctx context.Context, event *shared.EscrowEvent) error
	GetByEventID(ctx context.Context, eventID uuid.UUID) (*ArchivedEvent, error)
	GetByEscrowID(ctx context.Context, escrowID uuid.UUID, limit, offset int) ([]*ArchivedEvent, error)
}

// EventArchive implements ArchiveRepository backed by MongoDB
type EventArchive struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewEventArchive creates a new MongoDB event archive
func NewEventArchive(logger *slog.Logger, db *mongo.Database) ArchiveRepository {
	return &EventArchive{
		db:     db,
		logger: logger,
	}
}

// Record archives a delivered event. Re-delivery of the same event id is a
// no-op, keeping the archive idempotent under consumer retries.
func (a *EventArchive) Record(ctx context.Context, event *shared.EscrowEvent) error {
	collection := a.db.Collection(EventArchiveCollectionName)

	existing, err := a.GetByEventID(ctx, event.EventID)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		a.logger.Error("Failed to check for existing archived event",
			"event_id", event.EventID.String(),
			"error", err)
		return fmt.Errorf("failed to check for existing archived event: %w", err)
	}
	if existing != nil {
		a.logger.Debug("Event already archived, skipping",
			"event_id", event.EventID.String())
		return nil
	}

	record := &ArchivedEvent{
		EventID:       event.EventID,
		EscrowID:      event.EscrowID,
		Type:          event.Type,
		Recipients:    event.Recipients,
		Amount:        event.Amount,
		Detail:        event.Detail,
		CorrelationID: event.CorrelationID,
		OccurredAt:    event.OccurredAt,
		DeliveredAt:   time.Now(),
	}

	if _, err := collection.InsertOne(ctx, record); err != nil {
		a.logger.Error("Failed to archive escrow event",
			"event_id", event.EventID.String(),
			"error", err)
		return fmt.Errorf("failed to archive escrow event: %w", err)
	}

	return nil
}

// GetByEventID retrieves one archived event.
// Returns mongo.ErrNoDocuments wrapped when the event was never archived.
func (a *EventArchive) GetByEventID(ctx context.Context, eventID uuid.UUID) (*ArchivedEvent, error) {
	collection := a.db.Collection(EventArchiveCollectionName)

	filter := bson.M{"event_id": eventID}
	var record ArchivedEvent
	err := collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		a.logger.Error("Failed to get archived event",
			"event_id", eventID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get archived event: %w", err)
	}

	return &record, nil
}

// GetByEscrowID retrieves paginated archived events for an escrow, newest
// first
func (a *EventArchive) GetByEscrowID(ctx context.Context, escrowID uuid.UUID, limit, offset int) ([]*ArchivedEvent, error) {
	collection := a.db.Collection(EventArchiveCollectionName)

	filter := bson.M{"escrow_id": escrowID}
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		a.logger.Error("Failed to query archived events",
			"escrow_id", escrowID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to query archived events: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*ArchivedEvent
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode archived events: %w", err)
	}

	return records, nil
}
