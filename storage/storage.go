package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrInvalidHint  = errors.New("invalid storage hint")
)

// Store is the blob backend behind the ingestion and retrieval pipeline.
// Keys passed as hints are chosen by the caller; Put with the same hint
// overwrites, which is what makes chunk re-appends idempotent.
type Store interface {
	// Put streams r into the backend under hint and returns the resulting
	// location. The write is durable before Put returns. size may be -1
	// when unknown.
	Put(ctx context.Context, r io.Reader, size int64, hint string) (Location, error)

	// Open returns a reader over the whole blob together with its size.
	Open(ctx context.Context, loc Location) (io.ReadCloser, int64, error)

	// OpenRange returns a reader over up to length bytes starting at
	// offset, without buffering the span. An offset at or past the end of
	// the blob yields an empty reader, not an error.
	OpenRange(ctx context.Context, loc Location, offset, length int64) (io.ReadCloser, error)

	// Size reports the blob's size in bytes.
	Size(ctx context.Context, loc Location) (int64, error)

	// Delete removes the blob. A missing blob returns ErrBlobNotFound.
	Delete(ctx context.Context, loc Location) error
}

// Issuer hands out direct upload/download URLs. The minio-backed issuer
// returns presigned, time-limited URLs; the local issuer returns a
// same-origin endpoint with a zero expiry. Callers must not assume a
// locally issued URL is time-limited.
type Issuer interface {
	UploadURL(ctx context.Context, key, contentType string) (url string, expiresAt time.Time, err error)
	DownloadURL(ctx context.Context, key string) (url string, expiresAt time.Time, err error)
}
