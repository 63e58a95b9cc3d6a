package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/example/store-db/modules/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"foreign", errors.New("boom"), ""},
		{"business", productNotFound("op", 1), KindBusiness},
		{"wrapped", fmt.Errorf("call: %w", insufficientInventory("op", "x", 1, 2)), KindBusiness},
		{"unavailable", translate("op", &database.UnavailableError{State: database.StateDisconnected}), KindUnavailable},
		{"operation", translate("op", errors.New("boom")), KindOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_Is(t *testing.T) {
	err := insufficientInventory("order_product", "Widget", 2, 3)

	assert.ErrorIs(t, err, ErrInsufficientInventory)
	assert.ErrorIs(t, err, ErrBusinessRule)
	assert.NotErrorIs(t, err, ErrProductNotFound)
	assert.NotErrorIs(t, err, ErrOperationFailed)
}

func TestTranslate_PassesBusinessErrorsThrough(t *testing.T) {
	original := productNotFound("order_product", 7)

	assert.Same(t, original, translate("order_product", original))
	assert.Same(t, original, translate("order_product", fmt.Errorf("wrapped: %w", original)))
	assert.Nil(t, translate("op", nil))
}

func TestErrorPayload_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"business", insufficientInventory("order_product", "Widget", 2, 3)},
		{"unavailable", translate("get_products", &database.UnavailableError{State: database.StateSchemaIncompatible})},
		{"operation", translate("add_product", errors.New("disk full"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := NewErrorPayload(tt.err)
			require.NotNil(t, payload)

			data, err := json.Marshal(payload)
			require.NoError(t, err)
			var decoded ErrorPayload
			require.NoError(t, json.Unmarshal(data, &decoded))

			rebuilt := decoded.Err()
			var original, got *Error
			require.True(t, errors.As(tt.err, &original))
			require.True(t, errors.As(rebuilt, &got))
			assert.Equal(t, original.Kind, got.Kind)
			assert.Equal(t, original.Code, got.Code)
			assert.Equal(t, original.State, got.State)
			assert.Equal(t, tt.err.Error(), rebuilt.Error())
		})
	}

	assert.Nil(t, NewErrorPayload(nil))
	var none *ErrorPayload
	assert.NoError(t, none.Err())
}

func TestErrorPayload_ForeignError(t *testing.T) {
	payload := NewErrorPayload(errors.New("boom"))

	assert.Equal(t, KindOperation, payload.Kind)
	assert.Equal(t, CodeOperationFailed, payload.Code)
	assert.Equal(t, "Database operation failed: boom", payload.Message)
}
