package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ticketry/boxoffice/internal/observability"
)

// CatalogRepository reads the event catalog. Catalog authoring is ordinary
// CRUD owned elsewhere; the reservation system only validates that an event
// function exists before granting holds.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

type EventDoc struct {
	ID        uuid.UUID     `bson:"_id"`
	Name      string        `bson:"name"`
	Venue     string        `bson:"venue"`
	Functions []FunctionDoc `bson:"functions"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

type FunctionDoc struct {
	ID       uuid.UUID `bson:"id"`
	StartsAt time.Time `bson:"starts_at"`
}

func (c *CatalogRepository) GetEvent(ctx context.Context, id uuid.UUID) (*EventDoc, error) {
	var event EventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&event)
	if err != nil {
		c.logger.WithError(err).WithField("event_id", id).Error("failed to get event")
		return nil, err
	}
	return &event, nil
}

// HasFunction reports whether the event has the given function.
func (e *EventDoc) HasFunction(functionID uuid.UUID) bool {
	for _, f := range e.Functions {
		if f.ID == functionID {
			return true
		}
	}
	return false
}

func (c *CatalogRepository) CreateEvent(ctx context.Context, event EventDoc) error {
	event.CreatedAt = time.Now()
	event.UpdatedAt = time.Now()
	_, err := c.coll.InsertOne(ctx, event)
	if err != nil {
		c.logger.WithError(err).Error("failed to create event")
		return err
	}
	return nil
}
