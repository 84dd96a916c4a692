package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/activity-bookings/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ProofArchive keeps every payment-proof submission, including
// superseded ones, so admins can reconcile bank transfers against the
// full history rather than only the latest URL on the order row.
type ProofArchive struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewProofArchive(db *mongo.Database, logger observability.Logger) *ProofArchive {
	return &ProofArchive{
		coll:   db.Collection("payment_proofs"),
		logger: logger,
	}
}

type ProofDoc struct {
	ID          uuid.UUID `bson:"_id" json:"id"`
	OrderNumber string    `bson:"order_number" json:"order_number"`
	ProofURL    string    `bson:"proof_url" json:"proof_url"`
	SubmittedAt time.Time `bson:"submitted_at" json:"submitted_at"`
	Reconciled  bool      `bson:"reconciled" json:"reconciled"`
}

func (p *ProofArchive) Record(ctx context.Context, orderNumber, proofURL string, submittedAt time.Time) error {
	doc := ProofDoc{
		ID:          uuid.New(),
		OrderNumber: orderNumber,
		ProofURL:    proofURL,
		SubmittedAt: submittedAt,
	}
	_, err := p.coll.InsertOne(ctx, doc)
	if err != nil {
		p.logger.Error("failed to archive payment proof", err)
		return err
	}
	return nil
}

func (p *ProofArchive) ListByOrder(ctx context.Context, orderNumber string) ([]ProofDoc, error) {
	cursor, err := p.coll.Find(ctx, bson.M{"order_number": orderNumber})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []ProofDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// MarkReconciled flags every archived proof for the order once the
// admin confirms payment.
func (p *ProofArchive) MarkReconciled(ctx context.Context, orderNumber string) error {
	_, err := p.coll.UpdateMany(
		ctx,
		bson.M{"order_number": orderNumber},
		bson.M{"$set": bson.M{"reconciled": true}},
	)
	if err != nil {
		p.logger.Error("failed to mark proofs reconciled", err)
	}
	return err
}
