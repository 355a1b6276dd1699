package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"auth", Auth("no token"), http.StatusUnauthorized},
		{"forbidden", Forbidden("nope"), http.StatusForbidden},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"unavailable", Unavailable(context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"bare deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"internal", Internal(errors.New("boom")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestMessageHidesInternalDetails(t *testing.T) {
	err := Internal(errors.New("pq: relation messages does not exist"))
	assert.Equal(t, "Server error", Message(err))
	assert.Equal(t, "Server error", Message(errors.New("raw")))
	assert.Equal(t, "Thread not found", Message(fmt.Errorf("wrapped: %w", NotFound("Thread not found"))))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Unavailable(cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, KindUnavailable))
	assert.False(t, Is(nil, KindServer))
}
