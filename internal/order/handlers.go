package order

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gamifyshop/gamify-api/internal/auth"
	"github.com/gamifyshop/gamify-api/internal/logging"
)

// IntakeInterface defines the intake operation the HTTP layer depends on.
type IntakeInterface interface {
	Submit(ctx context.Context, identity auth.Identity, input SubmitInput) (string, error)
}

// Handler contains the HTTP handlers for the order endpoints.
type Handler struct {
	intake IntakeInterface
}

// NewHandler creates a new order Handler instance.
func NewHandler(intake IntakeInterface) *Handler {
	return &Handler{intake: intake}
}

// Register mounts the order routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/order/create", h.CreateOrder)
}

type createOrderRequest struct {
	AddressID       string `json:"addressId" binding:"required"`
	PaymentProvider string `json:"paymentProvider"`
	Products        string `json:"products"`
}

// CreateOrder accepts an order for the authenticated user. The response
// confirms queue receipt; the order record itself is created asynchronously.
func (h *Handler) CreateOrder(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated."})
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messageID, err := h.intake.Submit(c.Request.Context(), identity, SubmitInput{
		AddressID:       req.AddressID,
		PaymentProvider: req.PaymentProvider,
		Products:        req.Products,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthenticated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated."})
		case errors.Is(err, ErrEmptyCart):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty."})
		default:
			logging.FromContext(c.Request.Context()).Error("order_request_failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred while creating order."})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Order Created Successfully.",
		"messageId": messageID,
	})
}
