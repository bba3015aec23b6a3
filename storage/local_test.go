package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) Store {
	t.Helper()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalPutAndOpen(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	want := []byte("hello, recording")

	loc, err := s.Put(ctx, bytes.NewReader(want), int64(len(want)), "calls/rec.m4a")
	require.NoError(t, err)
	assert.False(t, loc.IsRemote())

	rc, size, err := s.Open(ctx, loc)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, int64(len(want)), size)
}

func TestLocalPutOverwritesSameHint(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	_, err := s.Put(ctx, strings.NewReader("first"), -1, "f.bin")
	require.NoError(t, err)
	loc, err := s.Put(ctx, strings.NewReader("second"), -1, "f.bin")
	require.NoError(t, err)

	rc, size, err := s.Open(ctx, loc)
	require.NoError(t, err)
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "second", string(got))
	assert.Equal(t, int64(len("second")), size)
}

func TestLocalRejectsBadHints(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	for _, hint := range []string{
		"",
		"../escape",
		"a/../../escape",
		"/etc/passwd",
		strings.Repeat("x", 300),
	} {
		_, err := s.Put(ctx, strings.NewReader("x"), 1, hint)
		assert.ErrorIs(t, err, ErrInvalidHint, "hint %q", hint)
	}
}

func TestLocalOpenRange(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	loc, err := s.Put(ctx, strings.NewReader("0123456789"), 10, "r.bin")
	require.NoError(t, err)

	readRange := func(offset, length int64) string {
		rc, err := s.OpenRange(ctx, loc, offset, length)
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(got)
	}

	assert.Equal(t, "0123", readRange(0, 4))
	assert.Equal(t, "789", readRange(7, 100))

	// Offset at or past end of file is empty, not an error.
	assert.Empty(t, readRange(10, 4))
	assert.Empty(t, readRange(50, 4))
}

func TestLocalDelete(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	loc, err := s.Put(ctx, strings.NewReader("x"), 1, "d.bin")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, loc))
	assert.ErrorIs(t, s.Delete(ctx, loc), ErrBlobNotFound)

	_, _, err = s.Open(ctx, loc)
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestLocalSize(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	loc, err := s.Put(ctx, strings.NewReader("12345"), 5, "s.bin")
	require.NoError(t, err)

	size, err := s.Size(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = s.Size(ctx, LocalLocation("nope.bin"))
	assert.ErrorIs(t, err, ErrBlobNotFound)
}
