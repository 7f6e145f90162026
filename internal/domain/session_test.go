package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionDefaults(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSession("abc", now)

	assert.Equal(t, StateIdle, s.State)
	assert.True(t, s.Settings.LockAspect)
	assert.Equal(t, DefaultQuality, s.Settings.Quality)
	assert.False(t, s.Settings.RemoveBackground)
	assert.Nil(t, s.Source)
	assert.Nil(t, s.Processed)
	assert.Equal(t, now, s.CreatedAt)
}

func TestErrorReasonAndKind(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := fmt.Errorf("transform stage: %w", NewError(KindDecodeFailure, "Failed to load image for processing.", cause))

	assert.Equal(t, KindDecodeFailure, KindOf(err))
	assert.Equal(t, "Failed to load image for processing.", ReasonOf(err))
	assert.ErrorIs(t, err, cause)

	plain := errors.New("boom")
	assert.Equal(t, ErrorKind(""), KindOf(plain))
	assert.Equal(t, "boom", ReasonOf(plain))
	assert.Equal(t, "", ReasonOf(nil))
}

func TestErrorDetail(t *testing.T) {
	err := NewError(KindRemoteFailure, "remote failed", errors.New("status 500"))
	assert.Equal(t, "remote_failure: remote failed: status 500", err.Detail())
	assert.Equal(t, "invalid_input: nope", Errorf(KindInvalidInput, "nope").Detail())
}

func TestDataURIRoundTrip(t *testing.T) {
	blob := Blob{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}

	parsed, err := ParseDataURI(blob.DataURI())
	require.NoError(t, err)
	assert.Equal(t, blob, parsed)
}

func TestParseDataURIRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{
		"https://example.com/x.png",
		"data:image/png;base64",
		"data:image/png,rawbytes",
		"data:image/png;base64,***",
	} {
		_, err := ParseDataURI(in)
		assert.Error(t, err, in)
	}
}
