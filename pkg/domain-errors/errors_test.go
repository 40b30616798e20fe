package derrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode_WalksChain(t *testing.T) {
	inner := New(CodeConflict, "name taken")
	outer := Wrap(inner, CodeInternal, "create failed")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeConflict))
	assert.False(t, HasCode(outer, CodeNotFound))
}

func TestHasCode_PlainError(t *testing.T) {
	assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	assert.False(t, HasCode(nil, CodeInternal))
}

func TestWrap_NilCause(t *testing.T) {
	require.Nil(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeUnavailable, "registry unreachable")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodeUnavailable, CodeOf(err))
	assert.Equal(t, "registry unreachable", MessageOf(err))
}

func TestCodeOf_DefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("wrapped: %w", errors.New("x"))))
}
