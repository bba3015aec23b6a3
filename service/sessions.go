package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"recording-service/entities"
	"recording-service/repository"
	"recording-service/storage"
)

var (
	ErrIncompleteUpload = errors.New("incomplete upload")
	ErrChunkOutOfRange  = errors.New("chunk index out of range")
)

// SessionStore is the upload-session state machine. Sessions are created by
// Init, grown by Append, and consumed by exactly one of Finalize or Cancel.
// Finalizing an already-cancelled session fails with the repository's
// session-not-found error; sessions are never resurrected.
type SessionStore interface {
	Init(ctx context.Context, callRecordId uuid.UUID, expectedChunks int) (uuid.UUID, error)
	Get(ctx context.Context, sessionId uuid.UUID) (*entities.UploadSession, error)
	// Append stages one chunk. Re-appending an index overwrites that
	// chunk's bytes without growing the received set.
	Append(ctx context.Context, sessionId uuid.UUID, index int, r io.Reader, size int64) error
	// Finalize concatenates all chunks in declared index order into one
	// durable blob, then removes the session and its staged chunks.
	Finalize(ctx context.Context, sessionId uuid.UUID, expectedChunks int) (storage.Location, error)
	// Cancel removes the session and staged chunks. It always succeeds;
	// cancelling an unknown session is a no-op.
	Cancel(ctx context.Context, sessionId uuid.UUID) error
}

type sessionStore struct {
	repo  repository.Repository
	store storage.Store
}

func NewSessionStore(repo repository.Repository, store storage.Store) SessionStore {
	return &sessionStore{repo: repo, store: store}
}

func chunkHint(sessionId uuid.UUID, index int) string {
	return fmt.Sprintf("sessions/%s/chunk_%05d", sessionId, index)
}

func (s *sessionStore) Init(ctx context.Context, callRecordId uuid.UUID, expectedChunks int) (uuid.UUID, error) {
	session := &entities.UploadSession{
		ID:             uuid.New(),
		CallRecordId:   callRecordId,
		ExpectedChunks: expectedChunks,
	}
	if err := s.repo.CreateUploadSession(ctx, session); err != nil {
		return uuid.Nil, err
	}
	return session.ID, nil
}

func (s *sessionStore) Get(ctx context.Context, sessionId uuid.UUID) (*entities.UploadSession, error) {
	return s.repo.FindUploadSessionById(ctx, sessionId)
}

func (s *sessionStore) Append(ctx context.Context, sessionId uuid.UUID, index int, r io.Reader, size int64) error {
	session, err := s.repo.FindUploadSessionById(ctx, sessionId)
	if err != nil {
		return err
	}
	if index < 0 || index >= session.ExpectedChunks {
		return ErrChunkOutOfRange
	}

	loc, err := s.store.Put(ctx, r, size, chunkHint(sessionId, index))
	if err != nil {
		return err
	}

	err = s.repo.UpsertUploadChunk(ctx, &entities.UploadChunk{
		SessionId:  sessionId,
		ChunkIndex: index,
		Location:   loc.String(),
		SizeBytes:  size,
	})
	if err != nil {
		// A concurrent cancel may have removed the session between the
		// lookup and the upsert.
		return err
	}

	if err := s.repo.TouchUploadSession(ctx, sessionId); err != nil &&
		!errors.Is(err, repository.ErrSessionNotFound) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("session_id", sessionId.String()).Msg("failed to touch session")
	}
	return nil
}

func (s *sessionStore) Finalize(ctx context.Context, sessionId uuid.UUID, expectedChunks int) (storage.Location, error) {
	session, err := s.repo.FindUploadSessionById(ctx, sessionId)
	if err != nil {
		return "", err
	}
	if expectedChunks <= 0 {
		expectedChunks = session.ExpectedChunks
	}

	chunks, err := s.repo.GetUploadChunksBySessionId(ctx, sessionId)
	if err != nil {
		return "", err
	}
	// Exact cardinality, nothing less and nothing more. Append bounds the
	// index range, the unique index deduplicates, so a full set is exactly
	// 0..expectedChunks-1.
	if len(chunks) != expectedChunks {
		return "", fmt.Errorf("%w: have %d of %d chunks", ErrIncompleteUpload, len(chunks), expectedChunks)
	}

	// Stream the chunks in declared index order through a pipe; arrival
	// order is irrelevant here because chunks come back sorted by index.
	pr, pw := io.Pipe()
	go func() {
		for _, chunk := range chunks {
			rc, _, err := s.store.Open(ctx, storage.ParseLocation(chunk.Location))
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			_, err = io.Copy(pw, rc)
			rc.Close()
			if err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.Close()
	}()

	hint := fmt.Sprintf("recordings/%s/%s", session.CallRecordId, sessionId)
	loc, err := s.store.Put(ctx, pr, -1, hint)
	if err != nil {
		pr.CloseWithError(err)
		return "", err
	}

	s.removeChunks(ctx, chunks)
	if err := s.repo.DeleteUploadSession(ctx, sessionId); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("session_id", sessionId.String()).Msg("failed to delete session after finalize")
	}
	return loc, nil
}

func (s *sessionStore) Cancel(ctx context.Context, sessionId uuid.UUID) error {
	_, err := s.repo.FindUploadSessionById(ctx, sessionId)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	chunks, err := s.repo.GetUploadChunksBySessionId(ctx, sessionId)
	if err != nil {
		return err
	}
	s.removeChunks(ctx, chunks)
	return s.repo.DeleteUploadSession(ctx, sessionId)
}

func (s *sessionStore) removeChunks(ctx context.Context, chunks []*entities.UploadChunk) {
	for _, chunk := range chunks {
		err := s.store.Delete(ctx, storage.ParseLocation(chunk.Location))
		if err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("location", chunk.Location).Msg("failed to delete staged chunk")
		}
	}
}
