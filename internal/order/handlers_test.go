package order

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamifyshop/gamify-api/internal/auth"
)

type stubIntake struct {
	messageID string
	err       error
	gotInput  SubmitInput
	gotUserID string
}

func (s *stubIntake) Submit(ctx context.Context, identity auth.Identity, input SubmitInput) (string, error) {
	s.gotUserID = identity.UserID
	s.gotInput = input
	return s.messageID, s.err
}

type staticVerifier struct{}

func (staticVerifier) Verify(token string) (auth.Identity, error) {
	if token == "good" {
		return auth.Identity{UserID: "user-1", Email: "user@example.com", Role: auth.RoleUser}, nil
	}
	return auth.Identity{}, auth.ErrUnauthenticated
}

func newTestRouter(intake IntakeInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1", auth.RequireAuth(staticVerifier{}))
	NewHandler(intake).Register(api)
	return r
}

func postOrder(t *testing.T, r *gin.Engine, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/order/create", &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateOrder(t *testing.T) {
	intake := &stubIntake{messageID: "msg-1"}
	r := newTestRouter(intake)

	w := postOrder(t, r, "good", gin.H{"addressId": "addr-1", "paymentProvider": "paypal"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Order Created Successfully.", resp["message"])
	assert.Equal(t, "msg-1", resp["messageId"])
	assert.Equal(t, "user-1", intake.gotUserID)
	assert.Equal(t, "addr-1", intake.gotInput.AddressID)
	assert.Equal(t, "paypal", intake.gotInput.PaymentProvider)
}

func TestCreateOrder_Unauthenticated(t *testing.T) {
	r := newTestRouter(&stubIntake{})

	w := postOrder(t, r, "bad", gin.H{"addressId": "addr-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrder_MissingAddress(t *testing.T) {
	r := newTestRouter(&stubIntake{})

	w := postOrder(t, r, "good", gin.H{"paymentProvider": "paypal"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	r := newTestRouter(&stubIntake{err: ErrEmptyCart})

	w := postOrder(t, r, "good", gin.H{"addressId": "addr-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Cart is empty.")
}

func TestCreateOrder_BrokerFailure(t *testing.T) {
	r := newTestRouter(&stubIntake{err: assert.AnError})

	w := postOrder(t, r, "good", gin.H{"addressId": "addr-1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "An error occurred while creating order.")
}
