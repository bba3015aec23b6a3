package storage

import (
	"context"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

type minioIssuer struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinioIssuer issues presigned PUT/GET URLs against the bucket. Every URL
// expires expiry after issuance.
func NewMinioIssuer(client *minio.Client, bucket string, expiry time.Duration) Issuer {
	return &minioIssuer{client: client, bucket: bucket, expiry: expiry}
}

func (i *minioIssuer) UploadURL(ctx context.Context, key, contentType string) (string, time.Time, error) {
	u, err := i.client.PresignedPutObject(ctx, i.bucket, key, i.expiry)
	if err != nil {
		return "", time.Time{}, err
	}
	return u.String(), time.Now().Add(i.expiry), nil
}

func (i *minioIssuer) DownloadURL(ctx context.Context, key string) (string, time.Time, error) {
	u, err := i.client.PresignedGetObject(ctx, i.bucket, key, i.expiry, url.Values{})
	if err != nil {
		return "", time.Time{}, err
	}
	return u.String(), time.Now().Add(i.expiry), nil
}

type localIssuer struct {
	baseURL string
}

// NewLocalIssuer is the trusted-dev-mode fallback used when the blob store is
// the local filesystem. Upload URLs point at the same-origin direct-upload
// endpoint and carry a zero expiry: they are not time-limited, and callers
// must not treat them as such.
func NewLocalIssuer(baseURL string) Issuer {
	return &localIssuer{baseURL: baseURL}
}

func (i *localIssuer) UploadURL(ctx context.Context, key, contentType string) (string, time.Time, error) {
	return i.baseURL + "/recordings/direct/" + key, time.Time{}, nil
}

func (i *localIssuer) DownloadURL(ctx context.Context, key string) (string, time.Time, error) {
	return i.baseURL + "/recordings/direct/" + key, time.Time{}, nil
}
