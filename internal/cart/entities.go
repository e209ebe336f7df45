package cart

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity   = errors.New("cart: quantity must be at least one")
	ErrProductNotFound   = errors.New("cart: product not found")
	ErrCartNotFound      = errors.New("cart: cart not found")
	ErrLineNotFound      = errors.New("cart: product not in cart")
	ErrInsufficientStock = errors.New("cart: insufficient stock")
)

// Product is the catalog row the cart reads. The cart transaction manager is
// the only writer of Stock; catalog management owns every other column.
type Product struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Price       int       `json:"price" db:"price"`
	Stock       int       `json:"stock" db:"stock"`
	OwnerID     string    `json:"ownerId" db:"owner_id"`
	CategoryID  string    `json:"categoryId" db:"category_id"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// Cart is one user's cart. A user has at most one, created lazily on the
// first add.
type Cart struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// NewCart creates a new Cart for the given user.
func NewCart(userID string) *Cart {
	now := time.Now().UTC()
	return &Cart{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Line is one product entry in a cart. A cart holds at most one line per
// product; a line at quantity zero is deleted, never stored.
type Line struct {
	ID        string `json:"id" db:"id"`
	CartID    string `json:"cartId" db:"cart_id"`
	ProductID string `json:"productId" db:"product_id"`
	Quantity  int    `json:"quantity" db:"quantity"`
}

// Item is a cart line joined with its product snapshot, as returned by GetCart.
type Item struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Product   Product `json:"product"`
}

// View is the full cart read model.
type View struct {
	ID       string `json:"id"`
	Products []Item `json:"products"`
}

// QuantityOp is a cart-line quantity mutation.
type QuantityOp string

const (
	OpIncrement QuantityOp = "inc"
	OpDecrement QuantityOp = "dec"
	OpRemove    QuantityOp = "rem"
)

// Apply computes the new line quantity for the operation. Unknown operations
// leave the quantity unchanged; results below zero clamp to zero, which the
// caller treats as line deletion.
func (op QuantityOp) Apply(current int) int {
	next := current
	switch op {
	case OpIncrement:
		next = current + 1
	case OpDecrement:
		next = current - 1
	case OpRemove:
		next = 0
	}
	if next < 0 {
		next = 0
	}
	return next
}
