package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationEncoding(t *testing.T) {
	local := LocalLocation("recordings/abc/rec.m4a")
	assert.False(t, local.IsRemote())
	assert.Equal(t, "recordings/abc/rec.m4a", local.Key())
	assert.Equal(t, "recordings/abc/rec.m4a", local.String())

	remote := RemoteLocation("recordings/abc/rec.m4a")
	assert.True(t, remote.IsRemote())
	assert.Equal(t, "recordings/abc/rec.m4a", remote.Key())
	assert.Equal(t, "remote:recordings/abc/rec.m4a", remote.String())
}

func TestLocationRoundTrip(t *testing.T) {
	// The persisted string form must parse back to an identical location;
	// call records store it and both pipeline ends read it.
	for _, loc := range []Location{
		LocalLocation("a/b/c.wav"),
		RemoteLocation("a/b/c.wav"),
	} {
		assert.Equal(t, loc, ParseLocation(loc.String()))
	}
}
