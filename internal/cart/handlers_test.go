package cart

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

type stubUseCase struct {
	addQty  int
	addErr  error
	line    *Line
	lineErr error
	view    *View
	viewErr error

	gotUserID    string
	gotProductID string
	gotQuantity  int
	gotOp        QuantityOp
}

func (s *stubUseCase) AddItem(ctx context.Context, userID, productID string, quantity int) (int, error) {
	s.gotUserID, s.gotProductID, s.gotQuantity = userID, productID, quantity
	return s.addQty, s.addErr
}

func (s *stubUseCase) ChangeQuantity(ctx context.Context, userID, cartID, productID string, op QuantityOp) (*Line, error) {
	s.gotUserID, s.gotProductID, s.gotOp = userID, productID, op
	return s.line, s.lineErr
}

func (s *stubUseCase) GetCart(ctx context.Context, userID string) (*View, error) {
	s.gotUserID = userID
	return s.view, s.viewErr
}

type staticVerifier struct{ identity auth.Identity }

func (v staticVerifier) Verify(token string) (auth.Identity, error) {
	if token == "good" {
		return v.identity, nil
	}
	return auth.Identity{}, auth.ErrUnauthenticated
}

func newTestRouter(uc UseCaseInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	verifier := staticVerifier{identity: auth.Identity{UserID: "user-1", Email: "user@example.com", Role: auth.RoleUser}}
	api := r.Group("/api/v1", auth.RequireAuth(verifier))
	NewHandler(uc).Register(api)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAddToCart(t *testing.T) {
	uc := &stubUseCase{addQty: 2}
	r := newTestRouter(uc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/cart/add", "good",
		gin.H{"productId": "P1", "quantity": 2})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Product added to cart successfully")
	assert.Equal(t, "user-1", uc.gotUserID)
	assert.Equal(t, "P1", uc.gotProductID)
	assert.Equal(t, 2, uc.gotQuantity)
}

func TestAddToCart_DefaultsQuantityToOne(t *testing.T) {
	uc := &stubUseCase{addQty: 1}
	r := newTestRouter(uc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/cart/add", "good", gin.H{"productId": "P1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, uc.gotQuantity)
}

func TestAddToCart_Unauthenticated(t *testing.T) {
	r := newTestRouter(&stubUseCase{})

	w := doJSON(t, r, http.MethodPost, "/api/v1/cart/add", "bad", gin.H{"productId": "P1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/cart/add", "", gin.H{"productId": "P1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAddToCart_MissingProductID(t *testing.T) {
	r := newTestRouter(&stubUseCase{})

	w := doJSON(t, r, http.MethodPost, "/api/v1/cart/add", "good", gin.H{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddToCart_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient stock", ErrInsufficientStock, http.StatusBadRequest},
		{"invalid quantity", ErrInvalidQuantity, http.StatusBadRequest},
		{"product not found", ErrProductNotFound, http.StatusNotFound},
		{"infrastructure failure", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&stubUseCase{addErr: tt.err})
			w := doJSON(t, r, http.MethodPost, "/api/v1/cart/add", "good",
				gin.H{"productId": "P1", "quantity": 1})
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestChangeQuantity(t *testing.T) {
	uc := &stubUseCase{line: &Line{ID: "line-1", CartID: "cart-1", ProductID: "P1", Quantity: 3}}
	r := newTestRouter(uc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/cart/quantity", "good",
		gin.H{"cartId": "cart-1", "productId": "P1", "type": "inc"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, OpIncrement, uc.gotOp)

	var line Line
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &line))
	assert.Equal(t, 3, line.Quantity)
}

func TestChangeQuantityHandler_LineNotFound(t *testing.T) {
	r := newTestRouter(&stubUseCase{lineErr: ErrLineNotFound})

	w := doJSON(t, r, http.MethodPost, "/api/v1/cart/quantity", "good",
		gin.H{"cartId": "cart-1", "productId": "P1", "type": "dec"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetItems(t *testing.T) {
	uc := &stubUseCase{view: &View{
		ID:       "cart-1",
		Products: []Item{{ProductID: "P1", Quantity: 2, Product: Product{ID: "P1", Title: "Widget"}}},
	}}
	r := newTestRouter(uc)

	w := doJSON(t, r, http.MethodGet, "/api/v1/cart/getItems", "good", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var view View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "cart-1", view.ID)
	require.Len(t, view.Products, 1)
	assert.Equal(t, "Widget", view.Products[0].Product.Title)
}

func TestGetItems_NoCartIsEmptyCart(t *testing.T) {
	r := newTestRouter(&stubUseCase{viewErr: ErrCartNotFound})

	w := doJSON(t, r, http.MethodGet, "/api/v1/cart/getItems", "good", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var view View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.NotNil(t, view.Products)
	assert.Empty(t, view.Products)
}
