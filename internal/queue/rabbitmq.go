package queue

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// OrderQueue is the fixed queue carrying order-intent messages.
const OrderQueue = "order"

// Broker holds the single process-wide AMQP connection. Channels are opened
// per publish/consume and closed when done; the connection itself is shared
// and lives for the whole process.
type Broker struct {
	conn  *amqp.Connection
	queue string
	log   *zap.Logger
}

// Dial connects to the broker and verifies the order queue exists.
func Dial(url, queueName string, logger *zap.Logger) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue: dial broker: %w", err)
	}

	b := &Broker{
		conn:  conn,
		queue: queueName,
		log:   logger.With(zap.String("component", "queue")),
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}
	defer ch.Close()

	if _, err := declareQueue(ch, queueName); err != nil {
		_ = conn.Close()
		return nil, err
	}

	b.log.Info("broker_connected", zap.String("queue", queueName))
	return b, nil
}

// Publish sends one message to the order queue and returns only after the
// broker confirms durable receipt.
func (b *Broker) Publish(ctx context.Context, body []byte) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("queue: open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("queue: enable publisher confirms: %w", err)
	}
	if _, err := declareQueue(ch, b.queue); err != nil {
		return err
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		"",      // default exchange
		b.queue, // routing key == queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("queue: await publish confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("queue: broker rejected publish")
	}
	return nil
}

// Consume opens a dedicated consumer channel on the order queue with manual
// acknowledgement. The returned closer must be called when the consumer
// stops; unacknowledged in-flight deliveries are then requeued by the broker.
func (b *Broker) Consume(ctx context.Context) (<-chan amqp.Delivery, func(), error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("queue: open channel: %w", err)
	}

	if _, err := declareQueue(ch, b.queue); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}

	// One unacked message at a time: ack ordering is the at-least-once guarantee.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("queue: set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx,
		b.queue,
		"",    // consumer tag
		false, // autoAck: manual ack only after persistence commits
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("queue: start consumer: %w", err)
	}

	closer := func() {
		if err := ch.Close(); err != nil {
			b.log.Warn("consumer_channel_close_failed", zap.Error(err))
		}
	}
	return deliveries, closer, nil
}

// Close tears down the shared connection.
func (b *Broker) Close() error {
	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("queue: close connection: %w", err)
	}
	b.log.Info("broker_disconnected")
	return nil
}

func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		false, // durable: matches the original contract
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("queue: declare %q: %w", name, err)
	}
	return q, nil
}
