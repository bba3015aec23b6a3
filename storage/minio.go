package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/minio/minio-go/v7"
)

type minioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore returns a Store backed by an object-storage bucket.
func NewMinioStore(client *minio.Client, bucket string) Store {
	return &minioStore{client: client, bucket: bucket}
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
	}
	return false
}

func (s *minioStore) Put(ctx context.Context, r io.Reader, size int64, hint string) (Location, error) {
	if hint == "" {
		return "", ErrInvalidHint
	}
	_, err := s.client.PutObject(ctx, s.bucket, hint, r, size, minio.PutObjectOptions{})
	if err != nil {
		return "", err
	}
	return RemoteLocation(hint), nil
}

func (s *minioStore) Open(ctx context.Context, loc Location) (io.ReadCloser, int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, loc.Key(), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, 0, ErrBlobNotFound
		}
		return nil, 0, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, loc.Key(), minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, err
	}
	return obj, info.Size, nil
}

func (s *minioStore) OpenRange(ctx context.Context, loc Location, offset, length int64) (io.ReadCloser, error) {
	info, err := s.client.StatObject(ctx, s.bucket, loc.Key(), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	if offset >= info.Size {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	end := offset + length - 1
	if end > info.Size-1 {
		end = info.Size - 1
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, end); err != nil {
		return nil, err
	}
	return s.client.GetObject(ctx, s.bucket, loc.Key(), opts)
}

func (s *minioStore) Size(ctx context.Context, loc Location) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, loc.Key(), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return 0, ErrBlobNotFound
		}
		return 0, err
	}
	return info.Size, nil
}

func (s *minioStore) Delete(ctx context.Context, loc Location) error {
	_, err := s.client.StatObject(ctx, s.bucket, loc.Key(), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return ErrBlobNotFound
		}
		return err
	}
	return s.client.RemoveObject(ctx, s.bucket, loc.Key(), minio.RemoveObjectOptions{})
}
