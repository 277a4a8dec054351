package worker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"docchat/internal/app"
	"docchat/internal/logging"
	"docchat/internal/model"
)

type IngestRunner interface {
	Run(ctx context.Context, job app.IngestJob) (*model.IngestRecord, error)
}

// IngestWorker runs auto-ingest jobs queued by uploads.
type IngestWorker struct {
	consumer
	runner IngestRunner
}

func NewIngestWorker(conn *amqp.Connection, runner IngestRunner, queueName string) *IngestWorker {
	w := &IngestWorker{runner: runner}
	w.consumer = consumer{
		conn:      conn,
		queueName: queueName,
		handle:    w.handle,
		logger:    logging.NewModuleLogger("worker", "ingest"),
	}
	return w
}

func (w *IngestWorker) handle(ctx context.Context, body []byte) error {
	var job app.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode ingest job failed: %w", err)
	}
	record, err := w.runner.Run(ctx, job)
	if err != nil {
		return fmt.Errorf("ingest document %d failed: %w", job.DocumentID, err)
	}
	w.logger.Info("auto ingest done", "document_id", job.DocumentID, "tenant", job.Tenant, "chunks", record.ChunkCount)
	return nil
}
