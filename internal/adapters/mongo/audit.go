package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/activity-bookings/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditLogger records every order and waitlist state change for the
// admin console. Writes are fire-and-forget relative to the booking
// transaction.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id" json:"id"`
	Action    string    `bson:"action" json:"action"`
	OrderID   uuid.UUID `bson:"order_id" json:"order_id"`
	ParentID  uuid.UUID `bson:"parent_id" json:"parent_id"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Data      bson.M    `bson:"data" json:"data"`
}

func (a *AuditLogger) LogOrderEvent(ctx context.Context, action string, orderID, parentID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		OrderID:   orderID,
		ParentID:  parentID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

// History returns the audit trail for one order, oldest first.
func (a *AuditLogger) History(ctx context.Context, orderID uuid.UUID) ([]AuditLog, error) {
	cursor, err := a.coll.Find(ctx, bson.M{"order_id": orderID},
		options.Find().SetSort(bson.M{"timestamp": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []AuditLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
