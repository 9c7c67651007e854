package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// MessageHandler processes one raw delivery body.
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer reads one queue with a fixed number of channels, each with a
// prefetch of one, so a worker runs a single job to completion at a time.
type Consumer struct {
	conn        *amqp091.Connection
	queue       string
	concurrency int
	handle      MessageHandler
	logger      zerolog.Logger
}

func NewConsumer(conn *amqp091.Connection, queue string, concurrency int, handle MessageHandler, logger zerolog.Logger) *Consumer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Consumer{
		conn:        conn,
		queue:       queue,
		concurrency: concurrency,
		handle:      handle,
		logger:      logger.With().Str("component", "consumer").Str("queue", queue).Logger(),
	}
}

// DeclareQueue declares a durable queue on ch.
func DeclareQueue(ch *amqp091.Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

// Run consumes until ctx is cancelled or a delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, c.concurrency)

	for i := 0; i < c.concurrency; i++ {
		ch, err := c.conn.Channel()
		if err != nil {
			return fmt.Errorf("open channel: %w", err)
		}
		defer ch.Close()

		if err := DeclareQueue(ch, c.queue); err != nil {
			return err
		}
		if err := ch.Qos(1, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
		deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", c.queue, err)
		}

		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			errs <- c.loop(ctx, worker, deliveries)
		}(i)
	}

	c.logger.Info().Int("concurrency", c.concurrency).Msg("consumer started")
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Consumer) loop(ctx context.Context, worker int, deliveries <-chan amqp091.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("worker %d: delivery channel closed", worker)
			}
			c.Process(ctx, d)
		}
	}
}

// Process runs the handler for one delivery and settles it. A failed
// delivery is requeued once; a redelivered failure or a permanent error is
// dropped.
func (c *Consumer) Process(ctx context.Context, d amqp091.Delivery) {
	log := c.logger.With().Str("message_id", d.MessageId).Uint64("delivery_tag", d.DeliveryTag).Logger()

	err := c.handle(WithFinalAttempt(ctx, d.Redelivered), d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error().Err(ackErr).Msg("ack failed")
		}
		return
	}

	requeue := !d.Redelivered && !errors.Is(err, ErrPermanent)
	if requeue {
		log.Warn().Err(err).Msg("message failed, requeueing")
	} else {
		log.Error().Err(err).Bool("redelivered", d.Redelivered).Msg("message failed, dropping")
	}
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		log.Error().Err(nackErr).Msg("nack failed")
	}
}
