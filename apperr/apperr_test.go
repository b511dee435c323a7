package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("fetch: %w", NotFound("profile not found"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrStorageFailure))
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Storage("failed to save profile", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.Equal(t, "failed to save profile: connection reset", err.Error())
}

func TestUserMessageHidesInternalDetail(t *testing.T) {
	t.Run("coded error", func(t *testing.T) {
		err := Storage("failed to save profile", errors.New("dial tcp 10.0.0.1:9000: i/o timeout"))
		assert.Equal(t, "failed to save profile", UserMessage(err))
	})

	t.Run("plain error", func(t *testing.T) {
		assert.Equal(t, "Oops! Something went wrong.", UserMessage(errors.New("boom")))
	})
}

func TestHTTPStatus(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"not found":        {NotFound("x"), http.StatusNotFound},
		"invalid argument": {InvalidArgument("x"), http.StatusBadRequest},
		"storage":          {Storage("x", nil), http.StatusBadGateway},
		"plain":            {errors.New("x"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}
