package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"sysdesign-ai/internal/model"
)

// ExportPublisher announces finished workbook exports on a durable queue.
type ExportPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewExportPublisher(conn *amqp.Connection, queueName string) *ExportPublisher {
	return &ExportPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *ExportPublisher) Publish(ctx context.Context, export model.PlanExport) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("marshal export payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish export failed: %w", err)
	}
	return nil
}

// DeclareQueue declares the durable, non-exclusive queue shared by the
// publisher and the archive worker.
func DeclareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %q failed: %w", name, err)
	}
	return q, nil
}
