package worker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"docchat/internal/logging"
	"docchat/internal/model"
)

type MessageStore interface {
	Create(ctx context.Context, message *model.Message) error
}

// MessagePersistWorker writes queued chat messages to the relational store.
type MessagePersistWorker struct {
	consumer
	repo MessageStore
}

func NewMessagePersistWorker(conn *amqp.Connection, repo MessageStore, queueName string) *MessagePersistWorker {
	w := &MessagePersistWorker{repo: repo}
	w.consumer = consumer{
		conn:      conn,
		queueName: queueName,
		handle:    w.handle,
		logger:    logging.NewModuleLogger("worker", "message_persist"),
	}
	return w
}

func (w *MessagePersistWorker) handle(ctx context.Context, body []byte) error {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode message failed: %w", err)
	}
	if msg.SessionID == 0 || msg.Content == "" {
		return fmt.Errorf("message missing session or content")
	}
	msg.ID = 0
	return w.repo.Create(ctx, &msg)
}
