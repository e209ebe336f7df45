package order

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxDeliveryAttempts bounds redeliveries of one message before it is
// dead-lettered instead of requeued.
const maxDeliveryAttempts = 5

// Consumer opens a manually-acknowledged delivery stream on the order queue.
type Consumer interface {
	Consume(ctx context.Context) (<-chan amqp.Delivery, func(), error)
}

// disposition is the worker's decision for one delivery.
type disposition int

const (
	ack disposition = iota
	requeue
	deadLetter
)

// Worker is the long-lived consumer that turns queued intents into durable
// order records. Exactly one logical worker runs per process; the broker's
// redelivery covers crashes between persisting and acknowledging.
type Worker struct {
	repository Repository
	consumer   Consumer
	retries    RetryLedger
	tracer     trace.Tracer
	log        *zap.Logger
	consumed   *prometheus.CounterVec
}

// NewWorker creates a new fulfillment Worker instance.
func NewWorker(repository Repository, consumer Consumer, retries RetryLedger,
	tracer trace.Tracer, logger *zap.Logger, consumed *prometheus.CounterVec,
) *Worker {
	return &Worker{
		repository: repository,
		consumer:   consumer,
		retries:    retries,
		tracer:     tracer,
		log:        logger.With(zap.String("component", "order_worker")),
		consumed:   consumed,
	}
}

// Run consumes the order queue until ctx is cancelled. The receive blocks
// cooperatively; there is no polling. Cancellation leaves any in-flight
// unacknowledged message to the broker's redelivery.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, closer, err := w.consumer.Consume(ctx)
	if err != nil {
		return err
	}
	defer closer()

	w.log.Info("worker_started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker_stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					w.log.Info("worker_stopped")
					return nil
				}
				return errors.New("order: delivery channel closed")
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	ctx, span := w.tracer.Start(ctx, "order.consume")
	defer span.End()

	switch w.process(ctx, d.Body) {
	case ack:
		if err := d.Ack(false); err != nil {
			w.log.Error("delivery_ack_failed", zap.Error(err))
		}
	case requeue:
		if err := d.Nack(false, true); err != nil {
			w.log.Error("delivery_nack_failed", zap.Error(err))
		}
	case deadLetter:
		// Minimal dead-letter path: log and acknowledge without persisting,
		// so the message cannot loop forever.
		if err := d.Ack(false); err != nil {
			w.log.Error("delivery_ack_failed", zap.Error(err))
		}
	}
	span.SetAttributes(attribute.Int("body_bytes", len(d.Body)))
}

// process decides the fate of one delivery body. Split from handle so the
// acknowledgement policy is testable without a live broker.
func (w *Worker) process(ctx context.Context, body []byte) disposition {
	msg, err := DecodeIntent(body)
	if err != nil {
		w.count("malformed")
		w.log.Error("intent_malformed", zap.Error(err))
		return deadLetter
	}

	log := w.log.With(zap.String("message_id", msg.MessageID), zap.String("user_id", msg.UserID))

	o, err := w.repository.CreateFromIntent(ctx, msg)
	switch {
	case err == nil:
		w.count("success")
		w.clearRetries(ctx, msg.MessageID, log)
		log.Info("order_persisted", zap.String("order_id", o.ID), zap.Int("items", len(msg.Items)))
		return ack
	case errors.Is(err, ErrDuplicateMessage):
		// Redelivery after a crash between persist and ack: already done.
		w.count("duplicate")
		w.clearRetries(ctx, msg.MessageID, log)
		if existing, lookupErr := w.repository.GetByMessageID(ctx, msg.MessageID); lookupErr == nil {
			log = log.With(zap.String("order_id", existing.ID))
		}
		log.Info("intent_duplicate_ignored")
		return ack
	default:
		attempts, bumpErr := w.retries.Bump(ctx, msg.MessageID)
		if bumpErr != nil {
			log.Warn("retry_ledger_unavailable", zap.Error(bumpErr))
		}
		if attempts >= maxDeliveryAttempts {
			w.count("dead_letter")
			w.clearRetries(ctx, msg.MessageID, log)
			log.Error("intent_dead_lettered", zap.Int64("attempts", attempts), zap.Error(err))
			return deadLetter
		}
		w.count("retried")
		log.Warn("intent_persist_failed_requeued", zap.Int64("attempts", attempts), zap.Error(err))
		return requeue
	}
}

func (w *Worker) clearRetries(ctx context.Context, messageID string, log *zap.Logger) {
	if err := w.retries.Clear(ctx, messageID); err != nil {
		log.Warn("retry_ledger_clear_failed", zap.Error(err))
	}
}

func (w *Worker) count(outcome string) {
	if w.consumed != nil {
		w.consumed.WithLabelValues(outcome).Inc()
	}
}
