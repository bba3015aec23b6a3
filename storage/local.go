package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxLocalPathLen bounds the joined path; most filesystems cap a single
// name component at 255 bytes and deeply nested hints are never legitimate.
const maxLocalPathLen = 255

type localStore struct {
	baseDir string
}

// NewLocalStore returns a Store writing beneath baseDir. Locations it
// produces are paths relative to baseDir.
func NewLocalStore(baseDir string) (Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, err
	}
	return &localStore{baseDir: baseDir}, nil
}

// resolve validates hint and maps it to an absolute path under baseDir.
func (s *localStore) resolve(hint string) (string, error) {
	hint = filepath.ToSlash(hint)
	if hint == "" || strings.Contains(hint, "..") || strings.HasPrefix(hint, "/") {
		return "", ErrInvalidHint
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(hint))
	if !strings.HasPrefix(full, filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
		return "", ErrInvalidHint
	}
	if len(full) > maxLocalPathLen {
		return "", ErrInvalidHint
	}
	return full, nil
}

func (s *localStore) Put(ctx context.Context, r io.Reader, size int64, hint string) (Location, error) {
	full, err := s.resolve(hint)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", err
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", err
	}
	// Flush to disk before the location becomes visible to anyone.
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(full)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", err
	}

	rel, err := filepath.Rel(s.baseDir, full)
	if err != nil {
		return "", err
	}
	return LocalLocation(filepath.ToSlash(rel)), nil
}

func (s *localStore) Open(ctx context.Context, loc Location) (io.ReadCloser, int64, error) {
	full, err := s.resolve(loc.Key())
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrBlobNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// rangeReadCloser bounds reads to the requested span while closing the
// underlying file.
type rangeReadCloser struct {
	io.Reader
	io.Closer
}

func (s *localStore) OpenRange(ctx context.Context, loc Location, offset, length int64) (io.ReadCloser, error) {
	full, err := s.resolve(loc.Key())
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if offset >= info.Size() {
		f.Close()
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return rangeReadCloser{Reader: io.LimitReader(f, length), Closer: f}, nil
}

func (s *localStore) Size(ctx context.Context, loc Location) (int64, error) {
	full, err := s.resolve(loc.Key())
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrBlobNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

func (s *localStore) Delete(ctx context.Context, loc Location) error {
	full, err := s.resolve(loc.Key())
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return ErrBlobNotFound
		}
		return err
	}
	return nil
}
