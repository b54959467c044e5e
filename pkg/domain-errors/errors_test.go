package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeStoreUnavailable, "store unreachable")

	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeStoreUnavailable))
	assert.Equal(t, "store_unavailable: store unreachable: connection refused", err.Error())
}

func TestCodeOf(t *testing.T) {
	t.Run("outermost coded layer wins", func(t *testing.T) {
		inner := New(CodeNotFound, "person not found")
		outer := Wrap(inner, CodeIncompleteSubmission, "file not stored")
		assert.Equal(t, CodeIncompleteSubmission, CodeOf(outer))
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeStoreBusy, "retry"))
		assert.Equal(t, CodeStoreBusy, CodeOf(err))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.False(t, HasCode(errors.New("boom"), CodeNotFound))
	})
}
