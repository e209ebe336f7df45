package cart

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gamifyshop/gamify-api/internal/auth"
	"github.com/gamifyshop/gamify-api/internal/logging"
)

// UseCaseInterface defines the cart operations the HTTP layer depends on.
type UseCaseInterface interface {
	AddItem(ctx context.Context, userID, productID string, quantity int) (int, error)
	ChangeQuantity(ctx context.Context, userID, cartID, productID string, op QuantityOp) (*Line, error)
	GetCart(ctx context.Context, userID string) (*View, error)
}

// Handler contains the HTTP handlers for the cart endpoints.
type Handler struct {
	useCase UseCaseInterface
}

// NewHandler creates a new cart Handler instance.
func NewHandler(useCase UseCaseInterface) *Handler {
	return &Handler{useCase: useCase}
}

// Register mounts the cart routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/cart/add", h.AddToCart)
	rg.POST("/cart/quantity", h.ChangeQuantity)
	rg.GET("/cart/getItems", h.GetItems)
}

type addToCartRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

// AddToCart adds a product to the authenticated user's cart.
func (h *Handler) AddToCart(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated."})
		return
	}

	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	_, err := h.useCase.AddItem(c.Request.Context(), identity.UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Product added to cart successfully"})
}

type quantityRequest struct {
	CartID    string `json:"cartId" binding:"required"`
	ProductID string `json:"productId" binding:"required"`
	Type      string `json:"type"`
}

// ChangeQuantity increments, decrements or removes a cart line.
func (h *Handler) ChangeQuantity(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated."})
		return
	}

	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	line, err := h.useCase.ChangeQuantity(c.Request.Context(), identity.UserID,
		req.CartID, req.ProductID, QuantityOp(req.Type))
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, line)
}

// GetItems returns the authenticated user's cart with product snapshots.
// A user without a cart gets an empty cart, not an error.
func (h *Handler) GetItems(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated."})
		return
	}

	view, err := h.useCase.GetCart(c.Request.Context(), identity.UserID)
	if errors.Is(err, ErrCartNotFound) {
		c.JSON(http.StatusOK, View{Products: []Item{}})
		return
	}
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// writeDomainError maps domain sentinels to HTTP statuses. Infrastructure
// failures collapse to a generic 500 without internal detail.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrCartNotFound),
		errors.Is(err, ErrLineNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logging.FromContext(c.Request.Context()).Error("cart_request_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong while updating the cart."})
	}
}
