package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/activity-bookings/internal/adapters/crdb"
	"github.com/robertarktes/activity-bookings/internal/adapters/rabbit"
	"github.com/robertarktes/activity-bookings/internal/observability"
)

// Publisher ships NEW outbox records to RabbitMQ. Events stay NEW
// until publish succeeds, so delivery is at-least-once and consumers
// dedupe on the message id.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records, err := p.repo.GetUnpublishedOutbox(ctx, 10)
			if err != nil {
				p.logger.Error("failed to fetch outbox records: ", err)
				continue
			}
			for _, rec := range records {
				observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())
				msg := amqp.Publishing{
					MessageId:   rec.DedupeKey,
					ContentType: "application/json",
					Body:        rec.Payload,
				}
				err := p.rabbitPub.Publish(ctx, rec.EventType, msg)
				if err != nil {
					p.logger.WithField("event_type", rec.EventType).Error("outbox publish failed: ", err)
					continue
				}
				if err := p.repo.MarkPublished(ctx, rec.ID, time.Now(), rec.DedupeKey); err != nil {
					p.logger.Error("failed to mark outbox record published: ", err)
				}
			}
		}
	}
}
