package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"recording-service/constant"
	"recording-service/dto"
	"recording-service/repository"
	"recording-service/storage"
)

var ErrNonRetryable = errors.New("non-retryable error")

// FinalizeService is the worker side of the pipeline. Each Process call is
// one delivery of an ingestion job; at-least-once delivery is expected, so
// every path is idempotent: already-processed jobs are skipped and an
// already-attached record is a no-op success, not a failure.
type FinalizeService interface {
	ProcessFinalize(ctx context.Context, message dto.FinalizeMessage) error
	ProcessSimpleStore(ctx context.Context, message dto.SimpleStoreMessage) error
}

type finalizeService struct {
	repo     repository.Repository
	sessions SessionStore
	store    storage.Store
}

func NewFinalizeService(repo repository.Repository, sessions SessionStore, store storage.Store) FinalizeService {
	return &finalizeService{
		repo:     repo,
		sessions: sessions,
		store:    store,
	}
}

// begin claims the job for this delivery. Unclaimed with a nil error means
// the delivery is a duplicate of settled work and should be acked away; a
// PROCESSING job is reclaimed, since its delivery can only come back after
// the previous claimer died unacked.
func (s *finalizeService) begin(ctx context.Context, message dto.FinalizeMessage, jobType constant.JobType) (bool, error) {
	job, err := s.repo.FindJobById(ctx, message.JobId)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			zerolog.Ctx(ctx).Warn().Str("job_id", message.JobId.String()).Msg("job not found, dropping message")
			return false, nil
		}
		return false, err
	}
	if job.JobType != jobType {
		zerolog.Ctx(ctx).Warn().Str("job_id", message.JobId.String()).Str("job_type", string(job.JobType)).Msg("job type mismatch, dropping message")
		return false, nil
	}
	switch job.Status {
	case constant.JobStatusPending:
	case constant.JobStatusProcessing:
		// A delivery in hand for a PROCESSING job means the worker that
		// claimed it died before acking; reclaim it and finish the work.
		zerolog.Ctx(ctx).Warn().Str("job_id", message.JobId.String()).Msg("reclaiming job left in processing")
	case constant.JobStatusFailed:
		// Keep surfacing an error so the delivery is nacked to the DLQ
		// instead of being acked away.
		return false, fmt.Errorf("job %s permanently failed", message.JobId)
	default:
		zerolog.Ctx(ctx).Info().Str("job_id", message.JobId.String()).Str("status", string(job.Status)).Msg("job already settled, dropping message")
		return false, nil
	}
	if err := s.repo.UpdateJobStatus(ctx, message.JobId, constant.JobStatusProcessing, ""); err != nil {
		return false, err
	}
	return true, nil
}

// settle runs deferred at the end of each Process call. Terminal outcomes
// become CANCELLED and stop retrying; everything else resets the job so the
// next attempt can claim it, or marks it FAILED once attempts run out. Temp
// artifacts of a permanently failed job are left in place for diagnosis.
func (s *finalizeService) settle(ctx context.Context, message dto.FinalizeMessage, cancelReason string, errp *error) {
	err := *errp
	if err == nil {
		return
	}
	if errors.Is(err, ErrNonRetryable) {
		if updateErr := s.repo.UpdateJobStatus(ctx, message.JobId, constant.JobStatusCancelled, cancelReason); updateErr != nil {
			zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
		}
		zerolog.Ctx(ctx).Info().
			Str("job_id", message.JobId.String()).
			Str("reason", cancelReason).
			Msg("job cancelled")
		*errp = nil
		return
	}

	attempts, attErr := s.repo.IncrementJobAttempts(ctx, message.JobId)
	if attErr != nil {
		zerolog.Ctx(ctx).Error().Err(attErr).Msg("failed to count job attempt")
	}
	if attempts >= constant.MaxJobAttempts {
		if updateErr := s.repo.UpdateJobStatus(ctx, message.JobId, constant.JobStatusFailed, "retries_exhausted"); updateErr != nil {
			zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
		}
		zerolog.Ctx(ctx).Error().
			Str("job_id", message.JobId.String()).
			Int("attempts", attempts).
			Msg("job permanently failed")
		return
	}
	if updateErr := s.repo.UpdateJobStatus(ctx, message.JobId, constant.JobStatusPending, ""); updateErr != nil {
		zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
	}
}

func (s *finalizeService) ProcessFinalize(ctx context.Context, message dto.FinalizeMessage) (err error) {
	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("session_id", message.SessionId.String()).
		Msg("processing finalize job")

	claimed, err := s.begin(ctx, message, constant.JobTypeChunkedFinalize)
	if err != nil || !claimed {
		return err
	}

	cancelReason := ""
	defer func() { s.settle(ctx, message, cancelReason, &err) }()

	loc, finalizeErr := s.sessions.Finalize(ctx, message.SessionId, message.ExpectedChunks)
	switch {
	case errors.Is(finalizeErr, ErrIncompleteUpload):
		// The client asked to finalize; more chunks will never arrive.
		// Reclaim the staged chunks and stop.
		if cancelErr := s.sessions.Cancel(ctx, message.SessionId); cancelErr != nil {
			zerolog.Ctx(ctx).Warn().Err(cancelErr).Msg("failed to cancel incomplete session")
		}
		cancelReason = constant.CancelReasonIncompleteUpload
		return errors.Join(ErrNonRetryable, finalizeErr)
	case errors.Is(finalizeErr, repository.ErrSessionNotFound):
		cancelReason = constant.CancelReasonUploadNotFound
		return errors.Join(ErrNonRetryable, finalizeErr)
	case finalizeErr != nil:
		return finalizeErr
	}

	attachErr := s.repo.AttachRecording(ctx, message.CallRecordId, loc.String())
	switch {
	case errors.Is(attachErr, repository.ErrRecordNotFound):
		s.deleteBlob(ctx, loc)
		cancelReason = constant.CancelReasonCallRecordNotFound
		return errors.Join(ErrNonRetryable, attachErr)
	case errors.Is(attachErr, repository.ErrAlreadyAttached):
		// Duplicate finalize attempt for the same record. The other
		// attempt won; drop the blob this one produced.
		zerolog.Ctx(ctx).Info().
			Str("call_record_id", message.CallRecordId.String()).
			Msg("recording already attached, treating as success")
		s.dropDuplicateBlob(ctx, message.CallRecordId, loc)
	case attachErr != nil:
		return attachErr
	}

	if err = s.repo.UpdateJobStatus(ctx, message.JobId, constant.JobStatusCompleted, ""); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("location", loc.String()).
		Msg("finalize job completed")
	return nil
}

func (s *finalizeService) ProcessSimpleStore(ctx context.Context, message dto.SimpleStoreMessage) (err error) {
	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("temp_path", message.TempPath).
		Msg("processing simple store job")

	// Simple jobs share the finalize job table; reuse the claim/settle
	// machinery via the common message fields.
	claim := dto.FinalizeMessage{JobId: message.JobId, CallRecordId: message.CallRecordId}
	claimed, err := s.begin(ctx, claim, constant.JobTypeSimpleStore)
	if err != nil || !claimed {
		return err
	}

	cancelReason := ""
	defer func() { s.settle(ctx, claim, cancelReason, &err) }()

	tmp, openErr := os.Open(message.TempPath)
	if openErr != nil {
		if os.IsNotExist(openErr) {
			// The staged file is gone; a retry cannot bring it back.
			cancelReason = constant.CancelReasonUploadNotFound
			return errors.Join(ErrNonRetryable, openErr)
		}
		return openErr
	}

	info, statErr := tmp.Stat()
	if statErr != nil {
		tmp.Close()
		return statErr
	}

	hint := fmt.Sprintf("recordings/%s/%s", message.CallRecordId, filepath.Base(message.FileName))
	loc, putErr := s.store.Put(ctx, tmp, info.Size(), hint)
	tmp.Close()
	if putErr != nil {
		// Keep the temp file: the retry needs it, and exhausted retries
		// leave it for manual cleanup.
		return putErr
	}

	attachErr := s.repo.AttachRecording(ctx, message.CallRecordId, loc.String())
	switch {
	case errors.Is(attachErr, repository.ErrRecordNotFound):
		s.deleteBlob(ctx, loc)
		s.removeTemp(ctx, message.TempPath)
		cancelReason = constant.CancelReasonCallRecordNotFound
		return errors.Join(ErrNonRetryable, attachErr)
	case errors.Is(attachErr, repository.ErrAlreadyAttached):
		zerolog.Ctx(ctx).Info().
			Str("call_record_id", message.CallRecordId.String()).
			Msg("recording already attached, treating as success")
		s.dropDuplicateBlob(ctx, message.CallRecordId, loc)
	case attachErr != nil:
		return attachErr
	}

	s.removeTemp(ctx, message.TempPath)

	if err = s.repo.UpdateJobStatus(ctx, message.JobId, constant.JobStatusCompleted, ""); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("location", loc.String()).
		Msg("simple store job completed")
	return nil
}

// dropDuplicateBlob reclaims the blob a losing duplicate attempt produced.
// Duplicate finalizes for one session assemble the blob under the same hint,
// so the loser's blob can be the very object the winner attached; deleting
// it then would leave the record pointing at nothing.
func (s *finalizeService) dropDuplicateBlob(ctx context.Context, recordId uuid.UUID, loc storage.Location) {
	record, err := s.repo.FindCallRecordById(ctx, recordId)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("location", loc.String()).Msg("failed to re-read call record, keeping blob")
		return
	}
	if record.HasRecording() && *record.RecordingLocation == loc.String() {
		return
	}
	s.deleteBlob(ctx, loc)
}

func (s *finalizeService) deleteBlob(ctx context.Context, loc storage.Location) {
	err := s.store.Delete(ctx, loc)
	if err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("location", loc.String()).Msg("failed to delete blob")
	}
}

func (s *finalizeService) removeTemp(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("temp_path", path).Msg("failed to remove temp file")
	}
}
