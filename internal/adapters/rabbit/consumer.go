package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer binds a queue to the bookings.events exchange. The email
// collaborator consumes order lifecycle events from here.
type Consumer struct {
	ch    *amqp.Channel
	queue string
}

func NewConsumer(conn *amqp.Connection, queue string, routingKeys ...string) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, err
	}
	for _, key := range routingKeys {
		if err := ch.QueueBind(queue, key, "bookings.events", false, nil); err != nil {
			return nil, err
		}
	}
	return &Consumer{ch: ch, queue: queue}, nil
}

func (c *Consumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.Consume(c.queue, "", false, false, false, false, nil)
}
