package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsErrCode(t *testing.T) {
	inner := New(ErrChecksumMismatch, "crc mismatch")
	outer := Wrap(ErrMalformedInput, "decode wrapper", inner)
	wrapped := fmt.Errorf("handle request: %w", outer)

	assert.True(t, IsErrCode(wrapped, ErrMalformedInput))
	assert.True(t, IsErrCode(wrapped, ErrChecksumMismatch))
	assert.False(t, IsErrCode(wrapped, ErrAuthFailed))
	assert.False(t, IsErrCode(nil, ErrMalformedInput))
	assert.Equal(t, ErrMalformedInput, CodeOf(wrapped))
	assert.Equal(t, ErrUnknown, CodeOf(fmt.Errorf("plain")))
}

func TestErrorString(t *testing.T) {
	err := Newf(ErrLengthMismatch, "declared=%d actual=%d", 4, 3)
	assert.Equal(t, "[1004] declared=4 actual=3", err.Error())
	assert.Equal(t, "length_mismatch", ErrLengthMismatch.String())
}
