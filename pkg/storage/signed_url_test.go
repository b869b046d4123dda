package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaybackSignerRoundTrip(t *testing.T) {
	signer := NewPlaybackSigner("test-secret", time.Hour)

	token, expiresAt, err := signer.Generate("lesson-1", "video/abc.mp4")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	lessonID, mediaRef, parsedExp, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "lesson-1", lessonID)
	assert.Equal(t, "video/abc.mp4", mediaRef)
	assert.Equal(t, expiresAt.Unix(), parsedExp.Unix())
}

func TestPlaybackSignerRejectsTamperedToken(t *testing.T) {
	signer := NewPlaybackSigner("test-secret", time.Hour)

	token, _, err := signer.Generate("lesson-1", "video/abc.mp4")
	require.NoError(t, err)

	_, _, _, err = signer.Parse("lesson-2" + token[len("lesson-1"):])
	assert.Error(t, err)
}

func TestPlaybackSignerRejectsExpiredToken(t *testing.T) {
	signer := &PlaybackSigner{secret: []byte("test-secret"), ttl: -time.Minute}

	token, _, err := signer.Generate("lesson-1", "video/abc.mp4")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token)
	assert.ErrorContains(t, err, "expired")
}

func TestPlaybackSignerRejectsWrongSecret(t *testing.T) {
	signer := NewPlaybackSigner("secret-a", time.Hour)
	other := NewPlaybackSigner("secret-b", time.Hour)

	token, _, err := signer.Generate("lesson-1", "video/abc.mp4")
	require.NoError(t, err)

	_, _, _, err = other.Parse(token)
	assert.ErrorContains(t, err, "signature")
}

func TestPlaybackSignerRequiresFields(t *testing.T) {
	signer := NewPlaybackSigner("test-secret", time.Hour)

	_, _, err := signer.Generate("", "video/abc.mp4")
	assert.Error(t, err)

	_, _, err = signer.Generate("lesson-1", "")
	assert.Error(t, err)
}
