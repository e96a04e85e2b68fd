package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToDomainErrorPassesThrough(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewMalformedCommand("uso: /tareasFecha AAAA-MM-DD"))
	de := ToDomainError(err)
	assert.Equal(t, CodeMalformedCommand, de.Code)
	assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
	assert.True(t, HasCode(err, CodeMalformedCommand))
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	cause := errors.New("boom")
	de := ToDomainError(cause)
	assert.Equal(t, CodeInternal, de.Code)
	assert.ErrorIs(t, de, cause)
	assert.Nil(t, ToDomainError(nil))
	assert.NoError(t, MapError(nil))
}

func TestStoreFailureUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStoreFailure("load incidence", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeStoreFailure))
	assert.False(t, HasCode(err, CodeTransportFailure))
	assert.Equal(t, "load incidence: connection reset", err.Error())
}
