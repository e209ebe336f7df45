package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyCart        = errors.New("order: cart is empty")
	ErrDuplicateMessage = errors.New("order: intent message already processed")
	ErrMalformedMessage = errors.New("order: malformed intent message")
)

// DefaultPaymentProvider is used when the request leaves the provider blank.
const DefaultPaymentProvider = "stripe"

// Order is the durable order record. Created only by the fulfillment worker,
// never by intake, and immutable afterwards.
type Order struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"userId" db:"user_id"`
	AddressID       string    `json:"addressId" db:"address_id"`
	PaymentProvider string    `json:"paymentProvider" db:"payment_provider"`
	MessageID       string    `json:"messageId" db:"message_id"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// NewOrder creates a new Order from the fields of a consumed intent message.
func NewOrder(userID, addressID, paymentProvider, messageID string) *Order {
	if paymentProvider == "" {
		paymentProvider = DefaultPaymentProvider
	}
	now := time.Now().UTC()
	return &Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		AddressID:       addressID,
		PaymentProvider: paymentProvider,
		MessageID:       messageID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// OrderProduct links an order to one purchased product.
type OrderProduct struct {
	ID        string `json:"id" db:"id"`
	OrderID   string `json:"orderId" db:"order_id"`
	ProductID string `json:"productId" db:"product_id"`
	Quantity  int    `json:"quantity" db:"quantity"`
}

// IntentItem is one cart line snapshotted into an intent message.
type IntentItem struct {
	ProductID string `json:"ProductId"`
	Quantity  int    `json:"Quantity"`
}

// IntentMessage is the wire contract on the order queue. AddressId,
// PaymentProvider and Products keep the legacy field casing; MessageId is
// the dedup key that makes redelivery idempotent, and Items is the cart
// snapshot the worker persists and clears.
type IntentMessage struct {
	MessageID       string       `json:"MessageId"`
	UserID          string       `json:"UserId"`
	AddressID       string       `json:"AddressId"`
	PaymentProvider string       `json:"PaymentProvider"`
	Products        string       `json:"Products"`
	Items           []IntentItem `json:"Items"`
}

// NewIntentMessage creates a new IntentMessage with a fresh message id.
func NewIntentMessage(userID, addressID, paymentProvider, products string, items []IntentItem) IntentMessage {
	return IntentMessage{
		MessageID:       uuid.New().String(),
		UserID:          userID,
		AddressID:       addressID,
		PaymentProvider: paymentProvider,
		Products:        products,
		Items:           items,
	}
}

// Encode serializes the message as UTF-8 JSON.
func (m IntentMessage) Encode() ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("order: encode intent: %w", err)
	}
	return body, nil
}

// DecodeIntent parses an intent message body. A body that does not parse, or
// that lacks the fields required for fulfillment, is permanently malformed.
func DecodeIntent(body []byte) (IntentMessage, error) {
	var m IntentMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return IntentMessage{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if m.MessageID == "" || m.UserID == "" {
		return IntentMessage{}, fmt.Errorf("%w: missing message or user id", ErrMalformedMessage)
	}
	return m, nil
}
