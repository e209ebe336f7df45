package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gamifyshop/gamify-api/internal/auth"
	"github.com/gamifyshop/gamify-api/internal/cart"
	"github.com/gamifyshop/gamify-api/internal/logging"
)

// Publisher sends one serialized message to the order queue and returns only
// after the broker confirms receipt.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// CartReader supplies the cart snapshot embedded in intent messages.
type CartReader interface {
	GetCart(ctx context.Context, userID string) (*cart.View, error)
}

// IntakeUseCase turns an authenticated order request into a durable queue
// message. It never persists the order itself; that is the worker's job.
type IntakeUseCase struct {
	carts           CartReader
	publisher       Publisher
	tracer          trace.Tracer
	publishFailures prometheus.Counter
}

// NewIntakeUseCase creates a new IntakeUseCase instance.
func NewIntakeUseCase(carts CartReader, publisher Publisher, tracer trace.Tracer, publishFailures prometheus.Counter) *IntakeUseCase {
	return &IntakeUseCase{
		carts:           carts,
		publisher:       publisher,
		tracer:          tracer,
		publishFailures: publishFailures,
	}
}

// SubmitInput carries the order request fields.
type SubmitInput struct {
	AddressID       string
	PaymentProvider string
	Products        string
}

// Submit snapshots the user's cart into an intent message and publishes it.
// Returns the message id once the broker has acknowledged durable receipt.
func (uc *IntakeUseCase) Submit(ctx context.Context, identity auth.Identity, input SubmitInput) (string, error) {
	ctx, span := uc.tracer.Start(ctx, "order.submit",
		trace.WithAttributes(attribute.String("address_id", input.AddressID)))
	defer span.End()

	if identity.UserID == "" {
		return "", auth.ErrUnauthenticated
	}

	view, err := uc.carts.GetCart(ctx, identity.UserID)
	if errors.Is(err, cart.ErrCartNotFound) {
		return "", ErrEmptyCart
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("order: snapshot cart: %w", err)
	}
	if len(view.Products) == 0 {
		return "", ErrEmptyCart
	}

	items := make([]IntentItem, 0, len(view.Products))
	for _, p := range view.Products {
		items = append(items, IntentItem{ProductID: p.ProductID, Quantity: p.Quantity})
	}

	msg := NewIntentMessage(identity.UserID, input.AddressID, input.PaymentProvider, input.Products, items)
	body, err := msg.Encode()
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	if err := uc.publisher.Publish(ctx, body); err != nil {
		uc.publishFailures.Inc()
		span.RecordError(err)
		logging.FromContext(ctx).Error("order_publish_failed",
			zap.String("message_id", msg.MessageID),
			zap.String("user_id", identity.UserID),
			zap.Error(err),
		)
		return "", fmt.Errorf("order: publish intent: %w", err)
	}

	span.SetAttributes(attribute.String("message_id", msg.MessageID))
	logging.FromContext(ctx).Info("order_intent_published",
		zap.String("message_id", msg.MessageID),
		zap.String("user_id", identity.UserID),
		zap.Int("items", len(items)),
	)
	return msg.MessageID, nil
}
