package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines the database operations for order fulfillment.
type Repository interface {
	// CreateFromIntent atomically persists the order, its product rows and
	// clears the matching cart lines. Returns ErrDuplicateMessage when the
	// intent's message id was already persisted, so redelivery is a no-op.
	CreateFromIntent(ctx context.Context, msg IntentMessage) (*Order, error)

	// GetByMessageID looks an order up by its dedup key.
	GetByMessageID(ctx context.Context, messageID string) (*Order, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new order PostgresRepository instance.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateFromIntent(ctx context.Context, msg IntentMessage) (*Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("order: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o := NewOrder(msg.UserID, msg.AddressID, msg.PaymentProvider, msg.MessageID)
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, address_id, payment_provider, message_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, o.ID, o.UserID, o.AddressID, o.PaymentProvider, o.MessageID, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateMessage
		}
		return nil, fmt.Errorf("order: insert order: %w", err)
	}

	productIDs := make([]string, 0, len(msg.Items))
	for _, item := range msg.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_products (id, order_id, product_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, uuid.New().String(), o.ID, item.ProductID, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("order: insert order product: %w", err)
		}
		productIDs = append(productIDs, item.ProductID)
	}

	// Clear the ordered lines from the user's cart in the same transaction.
	// Stock stays untouched: it was already debited when the lines were added.
	if len(productIDs) > 0 {
		_, err = tx.Exec(ctx, `
			DELETE FROM cart_products cp
			USING carts c
			WHERE cp.cart_id = c.id
			  AND c.user_id = $1
			  AND cp.product_id = ANY($2)
		`, o.UserID, productIDs)
		if err != nil {
			return nil, fmt.Errorf("order: clear cart lines: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("order: commit: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) GetByMessageID(ctx context.Context, messageID string) (*Order, error) {
	var o Order
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, address_id, payment_provider, message_id, created_at, updated_at
		FROM orders WHERE message_id = $1
	`, messageID).Scan(&o.ID, &o.UserID, &o.AddressID, &o.PaymentProvider,
		&o.MessageID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("order: query by message id: %w", err)
	}
	return &o, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
