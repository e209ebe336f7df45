package cart

import (
	"testing"
)

func TestNewCart(t *testing.T) {
	c := NewCart("user-456")

	if c.ID == "" {
		t.Error("Expected ID to be set")
	}
	if c.UserID != "user-456" {
		t.Errorf("Expected UserID user-456, got %s", c.UserID)
	}
	if c.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
	if c.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt to be set")
	}
}

func TestQuantityOpApply(t *testing.T) {
	tests := []struct {
		name    string
		op      QuantityOp
		current int
		want    int
	}{
		{"inc adds one", OpIncrement, 2, 3},
		{"dec subtracts one", OpDecrement, 2, 1},
		{"dec at one clamps to zero", OpDecrement, 1, 0},
		{"rem zeroes any quantity", OpRemove, 5, 0},
		{"rem at one", OpRemove, 1, 0},
		{"unknown op is a no-op", QuantityOp("bogus"), 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.op.Apply(tt.current); got != tt.want {
				t.Errorf("Apply(%d) = %d, want %d", tt.current, got, tt.want)
			}
		})
	}
}
