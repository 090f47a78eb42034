package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := ReorderCommit(errors.New("boom"), "shelf-1")

	assert.ErrorIs(t, err, ErrReorderCommit)
	assert.NotErrorIs(t, err, ErrTransientFetch)

	wrapped := fmt.Errorf("save: %w", err)
	assert.ErrorIs(t, wrapped, ErrReorderCommit)
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := TransientFetch(cause, "fetch shelf %s", "s-1")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "fetch shelf s-1: connection reset", err.Error())
}

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeValidation, http.StatusBadRequest},
		{CodeForbidden, http.StatusForbidden},
		{CodeAlreadySaving, http.StatusConflict},
		{CodeNotEditing, http.StatusConflict},
		{CodeTransientFetch, http.StatusBadGateway},
		{CodeReorderCommit, http.StatusBadGateway},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestError_WithDetailsKeepsCode(t *testing.T) {
	err := Validation("bad move").WithDetails(map[string]string{"item": "is required"})

	assert.Equal(t, CodeValidation, err.Code)
	assert.NotNil(t, err.Details)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("save: %w", ReorderCommit(errors.New("boom"), "s1"))

	assert.Equal(t, CodeReorderCommit, CodeOf(wrapped))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))

	e, ok := AsError(wrapped)
	assert.True(t, ok)
	assert.Contains(t, e.Error(), "boom")
}
