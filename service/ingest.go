package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"recording-service/constant"
	"recording-service/dto"
	"recording-service/entities"
	"recording-service/pkg/rabbitmq"
	"recording-service/repository"
	"recording-service/storage"
)

// IngestService is the synchronous side of the pipeline: it stages simple
// uploads, records S3-confirmed recordings, and hands finalize work across
// the queue. Concatenation never happens on the request path.
type IngestService interface {
	Presign(ctx context.Context, contentType string) (*dto.PresignResponse, error)
	Simple(ctx context.Context, record *entities.CallRecord, r io.Reader, fileName string) (*entities.Job, error)
	ConfirmRemote(ctx context.Context, record *entities.CallRecord, objectKey string) error
	EnqueueFinalize(ctx context.Context, session *entities.UploadSession) (*entities.Job, error)
}

type ingestService struct {
	repo      repository.Repository
	publisher rabbitmq.Publisher
	issuer    storage.Issuer
	tempDir   string
}

func NewIngestService(repo repository.Repository, publisher rabbitmq.Publisher, issuer storage.Issuer, tempDir string) IngestService {
	return &ingestService{
		repo:      repo,
		publisher: publisher,
		issuer:    issuer,
		tempDir:   tempDir,
	}
}

func extForContentType(contentType string) string {
	switch contentType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a":
		return ".m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/aac", "audio/x-aac":
		return ".aac"
	}
	return ".bin"
}

func (s *ingestService) Presign(ctx context.Context, contentType string) (*dto.PresignResponse, error) {
	key := "direct/" + uuid.NewString() + extForContentType(contentType)
	url, expiresAt, err := s.issuer.UploadURL(ctx, key, contentType)
	if err != nil {
		return nil, err
	}
	resp := &dto.PresignResponse{
		UploadURL: url,
		ObjectKey: key,
	}
	// Locally issued URLs have no expiry; leave the field empty rather
	// than invent one.
	if !expiresAt.IsZero() {
		resp.ExpiresAt = &expiresAt
	}
	return resp, nil
}

func (s *ingestService) Simple(ctx context.Context, record *entities.CallRecord, r io.Reader, fileName string) (*entities.Job, error) {
	if err := os.MkdirAll(s.tempDir, 0o750); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(s.tempDir, "upload-*")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	job := &entities.Job{
		ID:           uuid.New(),
		CallRecordId: record.ID,
		JobType:      constant.JobTypeSimpleStore,
		Status:       constant.JobStatusPending,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	message := dto.SimpleStoreMessage{
		JobId:        job.ID,
		CallRecordId: record.ID,
		TempPath:     tmp.Name(),
		FileName:     filepath.Base(fileName),
	}
	if err := s.publisher.Publish(ctx, rabbitmq.SimpleStoreQueue, message); err != nil {
		os.Remove(tmp.Name())
		if updateErr := s.repo.UpdateJobStatus(ctx, job.ID, constant.JobStatusFailed, "enqueue_failed"); updateErr != nil {
			zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
		}
		return nil, fmt.Errorf("failed to enqueue store job: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID.String()).
		Str("call_record_id", record.ID.String()).
		Msg("simple upload accepted")
	return job, nil
}

func (s *ingestService) ConfirmRemote(ctx context.Context, record *entities.CallRecord, objectKey string) error {
	// The blob already exists behind the presigned PUT; attaching is the
	// only remaining step and stays on the request path.
	return s.repo.AttachRecording(ctx, record.ID, storage.RemoteLocation(objectKey).String())
}

func (s *ingestService) EnqueueFinalize(ctx context.Context, session *entities.UploadSession) (*entities.Job, error) {
	job := &entities.Job{
		ID:           uuid.New(),
		CallRecordId: session.CallRecordId,
		JobType:      constant.JobTypeChunkedFinalize,
		Status:       constant.JobStatusPending,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	message := dto.FinalizeMessage{
		JobId:          job.ID,
		SessionId:      session.ID,
		ExpectedChunks: session.ExpectedChunks,
		CallRecordId:   session.CallRecordId,
	}
	if err := s.publisher.Publish(ctx, rabbitmq.FinalizeQueue, message); err != nil {
		if updateErr := s.repo.UpdateJobStatus(ctx, job.ID, constant.JobStatusFailed, "enqueue_failed"); updateErr != nil {
			zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
		}
		return nil, fmt.Errorf("failed to enqueue finalize job: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID.String()).
		Str("session_id", session.ID.String()).
		Msg("finalize accepted")
	return job, nil
}
