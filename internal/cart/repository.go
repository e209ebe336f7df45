package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx abstracts a database transaction.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Repository defines the database operations for carts and the stock ledger.
// Every stock mutation in the system goes through this interface inside a
// transaction opened by BeginTx.
type Repository interface {
	BeginTx(ctx context.Context) (Tx, error)

	// GetOrCreateCart returns the user's cart, creating it on first use.
	GetOrCreateCart(ctx context.Context, tx Tx, userID string) (*Cart, error)

	// GetCartByID loads a cart by primary key.
	GetCartByID(ctx context.Context, tx Tx, cartID string) (*Cart, error)

	// GetProductForUpdate loads the product row with a pessimistic lock
	// (SELECT FOR UPDATE), serializing concurrent stock mutations.
	GetProductForUpdate(ctx context.Context, tx Tx, productID string) (*Product, error)

	// GetLine loads the cart line for a product, if present.
	GetLine(ctx context.Context, tx Tx, cartID, productID string) (*Line, error)

	// UpsertLine merges quantity into the cart line for a product, creating
	// the line when absent, and returns the resulting quantity.
	UpsertLine(ctx context.Context, tx Tx, cartID, productID string, quantity int) (int, error)

	// SetLineQuantity overwrites a line's quantity.
	SetLineQuantity(ctx context.Context, tx Tx, lineID string, quantity int) error

	// DeleteLine removes a line entirely.
	DeleteLine(ctx context.Context, tx Tx, lineID string) error

	// AdjustStock applies a signed delta to the product's stock count.
	AdjustStock(ctx context.Context, tx Tx, productID string, delta int) error

	// GetCartByUser and ListItems serve the read-only cart view.
	GetCartByUser(ctx context.Context, userID string) (*Cart, error)
	ListItems(ctx context.Context, cartID string) ([]Item, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository instance.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// PostgresTx implements the Tx interface.
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *PostgresTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// BeginTx starts a new transaction.
func (r *PostgresRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &PostgresTx{tx: tx}, nil
}

func (r *PostgresRepository) GetOrCreateCart(ctx context.Context, tx Tx, userID string) (*Cart, error) {
	pgTx := tx.(*PostgresTx).tx

	var c Cart
	err := pgTx.QueryRow(ctx, `
		SELECT id, user_id, created_at, updated_at
		FROM carts WHERE user_id = $1
	`, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("query cart: %w", err)
	}

	// Two first-time adds from the same user can both miss the select above.
	// DO NOTHING lets the loser of the unique-index race fall through to
	// re-read the winner's row instead of failing the whole transaction.
	created := NewCart(userID)
	tag, err := pgTx.Exec(ctx, `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, created.ID, created.UserID, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = pgTx.QueryRow(ctx, `
			SELECT id, user_id, created_at, updated_at
			FROM carts WHERE user_id = $1
		`, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("query cart after insert race: %w", err)
		}
		return &c, nil
	}
	return created, nil
}

func (r *PostgresRepository) GetCartByID(ctx context.Context, tx Tx, cartID string) (*Cart, error) {
	pgTx := tx.(*PostgresTx).tx

	var c Cart
	err := pgTx.QueryRow(ctx, `
		SELECT id, user_id, created_at, updated_at
		FROM carts WHERE id = $1
	`, cartID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	return &c, nil
}

func (r *PostgresRepository) GetProductForUpdate(ctx context.Context, tx Tx, productID string) (*Product, error) {
	pgTx := tx.(*PostgresTx).tx

	var p Product
	err := pgTx.QueryRow(ctx, `
		SELECT id, title, description, price, stock, owner_id, category_id, created_at, updated_at
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.Stock,
		&p.OwnerID, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product with lock: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) GetLine(ctx context.Context, tx Tx, cartID, productID string) (*Line, error) {
	pgTx := tx.(*PostgresTx).tx

	var l Line
	err := pgTx.QueryRow(ctx, `
		SELECT id, cart_id, product_id, quantity
		FROM cart_products
		WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID).Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart line: %w", err)
	}
	return &l, nil
}

func (r *PostgresRepository) UpsertLine(ctx context.Context, tx Tx, cartID, productID string, quantity int) (int, error) {
	pgTx := tx.(*PostgresTx).tx

	var resulting int
	err := pgTx.QueryRow(ctx, `
		INSERT INTO cart_products (id, cart_id, product_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_products.quantity + EXCLUDED.quantity
		RETURNING quantity
	`, uuid.New().String(), cartID, productID, quantity).Scan(&resulting)
	if err != nil {
		return 0, fmt.Errorf("upsert cart line: %w", err)
	}
	return resulting, nil
}

func (r *PostgresRepository) SetLineQuantity(ctx context.Context, tx Tx, lineID string, quantity int) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		UPDATE cart_products SET quantity = $1 WHERE id = $2
	`, quantity, lineID)
	if err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteLine(ctx context.Context, tx Tx, lineID string) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		DELETE FROM cart_products WHERE id = $1
	`, lineID)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AdjustStock(ctx context.Context, tx Tx, productID string, delta int) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		UPDATE products
		SET stock = stock + $1,
		    updated_at = NOW()
		WHERE id = $2
	`, delta, productID)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetCartByUser(ctx context.Context, userID string) (*Cart, error) {
	var c Cart
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, created_at, updated_at
		FROM carts WHERE user_id = $1
	`, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	return &c, nil
}

func (r *PostgresRepository) ListItems(ctx context.Context, cartID string) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT cp.product_id, cp.quantity,
		       p.id, p.title, p.description, p.price, p.stock,
		       p.owner_id, p.category_id, p.created_at, p.updated_at
		FROM cart_products cp
		JOIN products p ON p.id = cp.product_id
		WHERE cp.cart_id = $1
		ORDER BY cp.id
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Quantity,
			&it.Product.ID, &it.Product.Title, &it.Product.Description,
			&it.Product.Price, &it.Product.Stock, &it.Product.OwnerID,
			&it.Product.CategoryID, &it.Product.CreatedAt, &it.Product.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

// IsRetryable reports whether the error is a transient transaction failure
// worth retrying: serialization failure (40001), deadlock (40P01) or lock
// timeout (55P03).
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}
