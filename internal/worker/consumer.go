package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docchat/internal/platform/rabbitmq"
)

// handleFunc processes one delivery body. A returned error nacks the delivery without requeue.
type handleFunc func(ctx context.Context, body []byte) error

// consumer drains one durable queue on its own channel until closed.
type consumer struct {
	conn      *amqp.Connection
	queueName string
	handle    handleFunc
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (c *consumer) Start(ctx context.Context) error {
	if c.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	ch, err := c.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, c.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		c.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := c.handle(workerCtx, d.Body); err != nil {
					c.logger.Error("handle delivery failed", "queue", c.queueName, "err", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	c.logger.Info("worker started", "queue", c.queueName)
	return nil
}

func (c *consumer) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}
