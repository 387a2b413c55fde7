package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"sysdesign-ai/internal/model"
	"sysdesign-ai/internal/platform/rabbitmq"
)

// ExportArchiver stores one archived export.
type ExportArchiver interface {
	Create(export *model.PlanExport) error
}

// ExportArchiveWorker drains the export queue into the archive.
type ExportArchiveWorker struct {
	conn      *amqp.Connection
	archiver  ExportArchiver
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExportArchiveWorker(conn *amqp.Connection, archiver ExportArchiver, queueName string, logger *zap.Logger) *ExportArchiveWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportArchiveWorker{
		conn:      conn,
		archiver:  archiver,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *ExportArchiveWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
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

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(d.Body); err != nil {
					w.logger.Warn("archive export failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *ExportArchiveWorker) handle(body []byte) error {
	var export model.PlanExport
	if err := json.Unmarshal(body, &export); err != nil {
		return fmt.Errorf("decode export event failed: %w", err)
	}
	// IDs are assigned by the archive.
	export.ID = 0
	if err := w.archiver.Create(&export); err != nil {
		return err
	}
	w.logger.Info("export archived",
		zap.String("session_id", export.SessionID),
		zap.String("file", export.FileName),
	)
	return nil
}

func (w *ExportArchiveWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
