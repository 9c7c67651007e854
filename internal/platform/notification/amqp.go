package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of an AMQP channel the queue mailer needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// QueueMailer publishes messages to a mail queue for a relay to deliver.
type QueueMailer struct {
	ch    Publisher
	queue string
}

func NewQueueMailer(ch Publisher, queue string) *QueueMailer {
	return &QueueMailer{ch: ch, queue: queue}
}

func (m *QueueMailer) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	err = m.ch.PublishWithContext(ctx, "", m.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Headers:      amqp091.Table{"message_type": "email"},
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", m.queue, err)
	}
	return nil
}

// RelayHandler decodes queued messages and delivers them through next.
// It is registered as the mail queue's consumer handler.
func RelayHandler(next Mailer) func(ctx context.Context, body []byte) error {
	return func(ctx context.Context, body []byte) error {
		var msg Message
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("decode queued email: %w", err)
		}
		return next.Send(ctx, msg)
	}
}
