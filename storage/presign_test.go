package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalIssuerURLs(t *testing.T) {
	issuer := NewLocalIssuer("http://localhost:8080")
	ctx := context.Background()

	uploadURL, expiresAt, err := issuer.UploadURL(ctx, "direct/abc.mp3", "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/recordings/direct/direct/abc.mp3", uploadURL)
	assert.True(t, expiresAt.IsZero(), "locally issued upload URLs do not expire")

	downloadURL, expiresAt, err := issuer.DownloadURL(ctx, "direct/abc.mp3")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/recordings/direct/direct/abc.mp3", downloadURL)
	assert.True(t, expiresAt.IsZero(), "locally issued download URLs do not expire")
}
