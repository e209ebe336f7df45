package cart

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gamifyshop/gamify-api/internal/logging"
)

const (
	// maxTxRetries bounds retries of transient transaction aborts. Stock is a
	// hot contended counter, so serialization conflicts are expected under load.
	maxTxRetries = 3
	retryBackoff = 25 * time.Millisecond
)

// UseCase applies cart mutations and their stock adjustments as one atomic
// unit. It owns the stock ledger write path: no other component touches
// products.stock.
type UseCase struct {
	repository Repository
	tracer     trace.Tracer
}

// NewUseCase creates a new cart UseCase instance.
func NewUseCase(repository Repository, tracer trace.Tracer) *UseCase {
	return &UseCase{
		repository: repository,
		tracer:     tracer,
	}
}

// AddItem adds quantity units of a product to the user's cart, debiting the
// stock ledger in the same transaction. Returns the resulting line quantity.
func (uc *UseCase) AddItem(ctx context.Context, userID, productID string, quantity int) (int, error) {
	if quantity < 1 {
		return 0, ErrInvalidQuantity
	}

	ctx, span := uc.tracer.Start(ctx, "cart.add_item",
		trace.WithAttributes(
			attribute.String("product_id", productID),
			attribute.Int("quantity", quantity),
		))
	defer span.End()

	var resulting int
	err := uc.withRetry(ctx, func(ctx context.Context) error {
		var err error
		resulting, err = uc.addItemTx(ctx, userID, productID, quantity)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	logging.FromContext(ctx).Info("cart_item_added",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("line_quantity", resulting),
	)
	return resulting, nil
}

func (uc *UseCase) addItemTx(ctx context.Context, userID, productID string, quantity int) (int, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("cart: begin add item: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := uc.repository.GetOrCreateCart(ctx, tx, userID)
	if err != nil {
		return 0, fmt.Errorf("cart: get or create cart: %w", err)
	}

	// Lock the product row for the rest of the transaction. Concurrent adds
	// for the same product serialize here.
	product, err := uc.repository.GetProductForUpdate(ctx, tx, productID)
	if err != nil {
		return 0, err
	}

	if product.Stock < quantity {
		return 0, ErrInsufficientStock
	}

	resulting, err := uc.repository.UpsertLine(ctx, tx, c.ID, productID, quantity)
	if err != nil {
		return 0, fmt.Errorf("cart: upsert line: %w", err)
	}

	if err := uc.repository.AdjustStock(ctx, tx, productID, -quantity); err != nil {
		return 0, fmt.Errorf("cart: debit stock: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("cart: commit add item: %w", err)
	}
	return resulting, nil
}

// ChangeQuantity applies inc/dec/rem to a cart line and credits freed units
// back to the stock ledger, symmetric with AddItem's debit. The returned
// line carries the resulting quantity; zero means the line was deleted.
func (uc *UseCase) ChangeQuantity(ctx context.Context, userID, cartID, productID string, op QuantityOp) (*Line, error) {
	ctx, span := uc.tracer.Start(ctx, "cart.change_quantity",
		trace.WithAttributes(
			attribute.String("cart_id", cartID),
			attribute.String("product_id", productID),
			attribute.String("op", string(op)),
		))
	defer span.End()

	var line *Line
	err := uc.withRetry(ctx, func(ctx context.Context) error {
		var err error
		line, err = uc.changeQuantityTx(ctx, userID, cartID, productID, op)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logging.FromContext(ctx).Info("cart_quantity_changed",
		zap.String("user_id", userID),
		zap.String("cart_id", cartID),
		zap.String("product_id", productID),
		zap.String("op", string(op)),
		zap.Int("line_quantity", line.Quantity),
	)
	return line, nil
}

func (uc *UseCase) changeQuantityTx(ctx context.Context, userID, cartID, productID string, op QuantityOp) (*Line, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("cart: begin change quantity: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := uc.repository.GetCartByID(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		// Do not reveal other users' carts.
		return nil, ErrCartNotFound
	}

	// Same lock order as AddItem: product row first, then the line.
	product, err := uc.repository.GetProductForUpdate(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	line, err := uc.repository.GetLine(ctx, tx, c.ID, productID)
	if err != nil {
		return nil, err
	}

	next := op.Apply(line.Quantity)
	if next == line.Quantity {
		return line, nil
	}

	delta := line.Quantity - next // positive when units return to stock
	if delta < 0 && product.Stock < -delta {
		return nil, ErrInsufficientStock
	}

	if next == 0 {
		if err := uc.repository.DeleteLine(ctx, tx, line.ID); err != nil {
			return nil, fmt.Errorf("cart: delete line: %w", err)
		}
	} else {
		if err := uc.repository.SetLineQuantity(ctx, tx, line.ID, next); err != nil {
			return nil, fmt.Errorf("cart: set line quantity: %w", err)
		}
	}

	if err := uc.repository.AdjustStock(ctx, tx, productID, delta); err != nil {
		return nil, fmt.Errorf("cart: credit stock: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("cart: commit change quantity: %w", err)
	}

	updated := *line
	updated.Quantity = next
	return &updated, nil
}

// GetCart returns the user's cart joined with product snapshots. Returns
// ErrCartNotFound when the user never added anything; callers present that
// as an empty cart.
func (uc *UseCase) GetCart(ctx context.Context, userID string) (*View, error) {
	c, err := uc.repository.GetCartByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := uc.repository.ListItems(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("cart: list items: %w", err)
	}

	return &View{ID: c.ID, Products: items}, nil
}

// withRetry runs fn, retrying transient transaction aborts a bounded number
// of times before surfacing the failure.
func (uc *UseCase) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = fn(ctx)
		if err == nil || !IsRetryable(err) {
			return err
		}

		logging.FromContext(ctx).Warn("cart_tx_retry",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * retryBackoff):
		}
	}
	return fmt.Errorf("cart: transaction retries exhausted: %w", err)
}
