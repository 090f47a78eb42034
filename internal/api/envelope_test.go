package api

import (
	"encoding/json/v2"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
)

func marshalToMap(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestEnvelopeTransformer(t *testing.T) {
	t.Run("success wraps data", func(t *testing.T) {
		out, err := EnvelopeTransformer(nil, "200", map[string]string{"id": "s1"})
		require.NoError(t, err)

		m := marshalToMap(t, out)
		assert.InDelta(t, float64(EnvelopeVersion), m["v"], 0)
		assert.Equal(t, true, m["success"])
		assert.Equal(t, map[string]any{"id": "s1"}, m["data"])
		assert.NotContains(t, m, "error")
	})

	t.Run("nil data", func(t *testing.T) {
		out, err := EnvelopeTransformer(nil, "204", nil)
		require.NoError(t, err)

		m := marshalToMap(t, out)
		assert.Equal(t, true, m["success"])
		assert.NotContains(t, m, "data")
	})

	t.Run("api error", func(t *testing.T) {
		out, err := EnvelopeTransformer(nil, "409", &APIError{
			status:  http.StatusConflict,
			Code:    "ALREADY_SAVING",
			Message: "shelf s1 is already saving",
		})
		require.NoError(t, err)

		m := marshalToMap(t, out)
		assert.Equal(t, false, m["success"])
		assert.Equal(t, "ALREADY_SAVING", m["code"])
		assert.Equal(t, "shelf s1 is already saving", m["error"])
	})

	t.Run("already wrapped", func(t *testing.T) {
		in := Envelope{Version: EnvelopeVersion, Success: true, Data: "x"}
		out, err := EnvelopeTransformer(nil, "200", in)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}

func TestRegisterErrorHandler_MapsDomainErrors(t *testing.T) {
	RegisterErrorHandler()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", domainerrors.NotFoundf("shelf %s not found", "s1"), http.StatusNotFound, "NOT_FOUND"},
		{"forbidden", domainerrors.Forbidden("only the owner may reorder"), http.StatusForbidden, "FORBIDDEN"},
		{"not editing", domainerrors.NotEditingf("shelf s1 is not being edited"), http.StatusConflict, "NOT_EDITING"},
		{"reorder commit", domainerrors.ReorderCommit(errors.New("boom"), "s1"), http.StatusBadGateway, "REORDER_COMMIT"},
		{"wrapped", errors.Join(errors.New("context"), domainerrors.Validation("bad")), http.StatusBadRequest, "VALIDATION"},
		{"plain", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := apiError(tt.err)

			var statusErr huma.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.wantStatus, statusErr.GetStatus())

			apiErr, ok := err.(*APIError)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}

	t.Run("internal errors hide their cause", func(t *testing.T) {
		apiErr, ok := apiError(errors.New("disk on fire")).(*APIError)
		require.True(t, ok)
		assert.Equal(t, "internal server error", apiErr.Message)
		assert.Nil(t, apiErr.Details)
	})

	assert.NoError(t, apiError(nil))
}
