package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	err := New(KindValidation, "bad shift")
	assert.Equal(t, "validation: bad shift", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.StatusCode())
}

func TestWithDetails(t *testing.T) {
	err := New(KindNotFound, "trainset missing").WithDetails("id=ts-42")
	assert.Equal(t, "not_found: trainset missing (id=ts-42)", err.Error())
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(cause, KindStoreUnavailable, "snapshot failed")
	require.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusServiceUnavailable, err.StatusCode())
}

func TestIsAndKindOf(t *testing.T) {
	err := New(KindTimedOut, "generation budget exceeded")
	assert.True(t, Is(err, KindTimedOut))
	assert.False(t, Is(err, KindCancelled))
	assert.Equal(t, KindTimedOut, KindOf(err))

	plain := errors.New("unstructured")
	assert.Equal(t, KindInternal, KindOf(plain))
}

func TestWrapfFormatsMessage(t *testing.T) {
	err := Wrapf(errors.New("boom"), KindInternal, "optimizer run %s failed", "run-1")
	assert.Equal(t, "internal: optimizer run run-1 failed", err.Error())
}
