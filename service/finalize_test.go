package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"recording-service/constant"
	"recording-service/dto"
	"recording-service/entities"
	"recording-service/repository"
	"recording-service/storage"
)

func (e *testEnv) finalizer() FinalizeService {
	return NewFinalizeService(e.repo, e.sessions, e.store)
}

func (e *testEnv) newJob(t *testing.T, recordId uuid.UUID, jobType constant.JobType) *entities.Job {
	t.Helper()
	job := &entities.Job{
		ID:           uuid.New(),
		CallRecordId: recordId,
		JobType:      jobType,
		Status:       constant.JobStatusPending,
	}
	require.NoError(t, e.repo.CreateJob(context.Background(), job))
	return job
}

func (e *testEnv) jobById(t *testing.T, id uuid.UUID) *entities.Job {
	t.Helper()
	job, err := e.repo.FindJobById(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestProcessFinalizeEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	record := env.newCallRecord(t, uuid.New())

	sessionId, err := env.sessions.Init(ctx, record.ID, 3)
	require.NoError(t, err)
	env.append(t, sessionId, 1, "B")
	env.append(t, sessionId, 0, "A")
	env.append(t, sessionId, 2, "C")

	job := env.newJob(t, record.ID, constant.JobTypeChunkedFinalize)
	err = env.finalizer().ProcessFinalize(ctx, dto.FinalizeMessage{
		JobId:          job.ID,
		SessionId:      sessionId,
		ExpectedChunks: 3,
		CallRecordId:   record.ID,
	})
	require.NoError(t, err)

	got, err := env.repo.FindCallRecordById(ctx, record.ID)
	require.NoError(t, err)
	require.True(t, got.HasRecording())
	assert.Equal(t, "ABC", env.readBlob(t, storage.ParseLocation(*got.RecordingLocation)))

	assert.Equal(t, constant.JobStatusCompleted, env.jobById(t, job.ID).Status)

	_, err = env.repo.FindUploadSessionById(ctx, sessionId)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	// Staged chunks are reclaimed; only the final blob remains.
	assert.Equal(t, 1, env.countStoredFiles(t))
}

func TestProcessFinalizeIncompleteUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	record := env.newCallRecord(t, uuid.New())

	sessionId, err := env.sessions.Init(ctx, record.ID, 3)
	require.NoError(t, err)
	env.append(t, sessionId, 0, "A")

	job := env.newJob(t, record.ID, constant.JobTypeChunkedFinalize)
	err = env.finalizer().ProcessFinalize(ctx, dto.FinalizeMessage{
		JobId:          job.ID,
		SessionId:      sessionId,
		ExpectedChunks: 3,
		CallRecordId:   record.ID,
	})
	// Terminal cancellation acks the delivery.
	require.NoError(t, err)

	got := env.jobById(t, job.ID)
	assert.Equal(t, constant.JobStatusCancelled, got.Status)
	assert.Equal(t, constant.CancelReasonIncompleteUpload, got.Reason)

	// The session and its staged chunks are reclaimed.
	_, err = env.repo.FindUploadSessionById(ctx, sessionId)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	assert.Equal(t, 0, env.countStoredFiles(t))

	record2, err := env.repo.FindCallRecordById(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, record2.HasRecording())
}

func TestProcessFinalizeSessionMissing(t *testing.T) {
	env := newTestEnv(t)
	record := env.newCallRecord(t, uuid.New())
	job := env.newJob(t, record.ID, constant.JobTypeChunkedFinalize)

	err := env.finalizer().ProcessFinalize(context.Background(), dto.FinalizeMessage{
		JobId:          job.ID,
		SessionId:      uuid.New(),
		ExpectedChunks: 2,
		CallRecordId:   record.ID,
	})
	require.NoError(t, err)

	got := env.jobById(t, job.ID)
	assert.Equal(t, constant.JobStatusCancelled, got.Status)
	assert.Equal(t, constant.CancelReasonUploadNotFound, got.Reason)
}

func TestProcessFinalizeRecordMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	missingRecord := uuid.New()

	sessionId, err := env.sessions.Init(ctx, missingRecord, 1)
	require.NoError(t, err)
	env.append(t, sessionId, 0, "audio")

	job := env.newJob(t, missingRecord, constant.JobTypeChunkedFinalize)
	err = env.finalizer().ProcessFinalize(ctx, dto.FinalizeMessage{
		JobId:          job.ID,
		SessionId:      sessionId,
		ExpectedChunks: 1,
		CallRecordId:   missingRecord,
	})
	require.NoError(t, err)

	got := env.jobById(t, job.ID)
	assert.Equal(t, constant.JobStatusCancelled, got.Status)
	assert.Equal(t, constant.CancelReasonCallRecordNotFound, got.Reason)

	// The assembled blob is deleted again; nothing leaks.
	assert.Equal(t, 0, env.countStoredFiles(t))
}

func TestProcessFinalizeDuplicateAttachIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	record := env.newCallRecord(t, uuid.New())
	finalizer := env.finalizer()

	runSession := func(data string) *entities.Job {
		sessionId, err := env.sessions.Init(ctx, record.ID, 1)
		require.NoError(t, err)
		env.append(t, sessionId, 0, data)
		job := env.newJob(t, record.ID, constant.JobTypeChunkedFinalize)
		require.NoError(t, finalizer.ProcessFinalize(ctx, dto.FinalizeMessage{
			JobId:          job.ID,
			SessionId:      sessionId,
			ExpectedChunks: 1,
			CallRecordId:   record.ID,
		}))
		return job
	}

	first := runSession("winner")
	second := runSession("loser")

	// Both deliveries succeed, but the first assignment sticks and the
	// second blob is dropped.
	assert.Equal(t, constant.JobStatusCompleted, env.jobById(t, first.ID).Status)
	assert.Equal(t, constant.JobStatusCompleted, env.jobById(t, second.ID).Status)

	got, err := env.repo.FindCallRecordById(ctx, record.ID)
	require.NoError(t, err)
	require.True(t, got.HasRecording())
	assert.Equal(t, "winner", env.readBlob(t, storage.ParseLocation(*got.RecordingLocation)))
	assert.Equal(t, 1, env.countStoredFiles(t))
}

func TestProcessFinalizeDuplicateForSameSessionKeepsBlob(t *testing.T) {
	// Two deliveries racing on one session assemble the final blob under
	// the same hint. The attach loser must not delete it: that is the very
	// blob the winner attached, and the record must keep pointing at bytes
	// that exist.
	env := newTestEnv(t)
	ctx := context.Background()
	record := env.newCallRecord(t, uuid.New())

	sessionId, err := env.sessions.Init(ctx, record.ID, 1)
	require.NoError(t, err)
	env.append(t, sessionId, 0, "racing bytes")

	// The winner already attached the location this session's finalize
	// produces.
	winnerLoc := storage.LocalLocation(fmt.Sprintf("recordings/%s/%s", record.ID, sessionId))
	require.NoError(t, env.repo.AttachRecording(ctx, record.ID, winnerLoc.String()))

	job := env.newJob(t, record.ID, constant.JobTypeChunkedFinalize)
	require.NoError(t, env.finalizer().ProcessFinalize(ctx, dto.FinalizeMessage{
		JobId:          job.ID,
		SessionId:      sessionId,
		ExpectedChunks: 1,
		CallRecordId:   record.ID,
	}))
	assert.Equal(t, constant.JobStatusCompleted, env.jobById(t, job.ID).Status)

	size, err := env.store.Size(ctx, winnerLoc)
	require.NoError(t, err, "attached recording must still exist")
	assert.Equal(t, int64(len("racing bytes")), size)
}

func TestProcessSimpleStoreDuplicateKeepsBlob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	record := env.newCallRecord(t, uuid.New())
	finalizer := env.finalizer()

	run := func(data string) *entities.Job {
		job := env.newJob(t, record.ID, constant.JobTypeSimpleStore)
		require.NoError(t, finalizer.ProcessSimpleStore(ctx, dto.SimpleStoreMessage{
			JobId:        job.ID,
			CallRecordId: record.ID,
			TempPath:     writeTemp(t, data),
			FileName:     "call.mp3",
		}))
		return job
	}

	// A redelivered simple upload carries the same file name, so both
	// attempts store under the same hint.
	first := run("same bytes")
	second := run("same bytes")
	assert.Equal(t, constant.JobStatusCompleted, env.jobById(t, first.ID).Status)
	assert.Equal(t, constant.JobStatusCompleted, env.jobById(t, second.ID).Status)

	got, err := env.repo.FindCallRecordById(ctx, record.ID)
	require.NoError(t, err)
	require.True(t, got.HasRecording())
	loc := storage.ParseLocation(*got.RecordingLocation)
	assert.Equal(t, "same bytes", env.readBlob(t, loc), "attached recording must still exist")
	assert.Equal(t, 1, env.countStoredFiles(t))
}

func TestProcessFinalizeReclaimsProcessingJob(t *testing.T) {
	// A worker that died after claiming the job leaves it PROCESSING with
	// the delivery unacked; the redelivery must finish the work instead of
	// acking it away.
	env := newTestEnv(t)
	ctx := context.Background()
	record := env.newCallRecord(t, uuid.New())

	sessionId, err := env.sessions.Init(ctx, record.ID, 1)
	require.NoError(t, err)
	env.append(t, sessionId, 0, "survives the crash")

	job := env.newJob(t, record.ID, constant.JobTypeChunkedFinalize)
	require.NoError(t, env.repo.UpdateJobStatus(ctx, job.ID, constant.JobStatusProcessing, ""))

	require.NoError(t, env.finalizer().ProcessFinalize(ctx, dto.FinalizeMessage{
		JobId:          job.ID,
		SessionId:      sessionId,
		ExpectedChunks: 1,
		CallRecordId:   record.ID,
	}))

	assert.Equal(t, constant.JobStatusCompleted, env.jobById(t, job.ID).Status)
	got, err := env.repo.FindCallRecordById(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, got.HasRecording())
}

func TestProcessFinalizeFailedJobIsNotAcked(t *testing.T) {
	// A redelivery for a permanently failed job surfaces an error so the
	// consumer dead-letters it instead of acknowledging it.
	env := newTestEnv(t)
	ctx := context.Background()
	record := env.newCallRecord(t, uuid.New())
	job := env.newJob(t, record.ID, constant.JobTypeChunkedFinalize)
	require.NoError(t, env.repo.UpdateJobStatus(ctx, job.ID, constant.JobStatusFailed, "retries_exhausted"))

	err := env.finalizer().ProcessFinalize(ctx, dto.FinalizeMessage{
		JobId:        job.ID,
		SessionId:    uuid.New(),
		CallRecordId: record.ID,
	})
	require.Error(t, err)

	got := env.jobById(t, job.ID)
	assert.Equal(t, constant.JobStatusFailed, got.Status)
	assert.Equal(t, "retries_exhausted", got.Reason)
	assert.Zero(t, got.Attempts)
}

func TestProcessFinalizeSkipsNonPendingJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	record := env.newCallRecord(t, uuid.New())
	job := env.newJob(t, record.ID, constant.JobTypeChunkedFinalize)
	require.NoError(t, env.repo.UpdateJobStatus(ctx, job.ID, constant.JobStatusCompleted, ""))

	err := env.finalizer().ProcessFinalize(ctx, dto.FinalizeMessage{
		JobId:        job.ID,
		SessionId:    uuid.New(),
		CallRecordId: record.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, constant.JobStatusCompleted, env.jobById(t, job.ID).Status)
}

func TestProcessFinalizeDropsUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	err := env.finalizer().ProcessFinalize(context.Background(), dto.FinalizeMessage{
		JobId: uuid.New(),
	})
	assert.NoError(t, err)
}

func writeTemp(t *testing.T, data string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "upload-*")
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestProcessSimpleStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	record := env.newCallRecord(t, uuid.New())
	tempPath := writeTemp(t, "simple recording bytes")

	job := env.newJob(t, record.ID, constant.JobTypeSimpleStore)
	err := env.finalizer().ProcessSimpleStore(ctx, dto.SimpleStoreMessage{
		JobId:        job.ID,
		CallRecordId: record.ID,
		TempPath:     tempPath,
		FileName:     "call.mp3",
	})
	require.NoError(t, err)

	got, err := env.repo.FindCallRecordById(ctx, record.ID)
	require.NoError(t, err)
	require.True(t, got.HasRecording())
	loc := storage.ParseLocation(*got.RecordingLocation)
	assert.Equal(t, "simple recording bytes", env.readBlob(t, loc))
	assert.Equal(t, "call.mp3", filepath.Base(loc.Key()))

	assert.Equal(t, constant.JobStatusCompleted, env.jobById(t, job.ID).Status)
	assert.NoFileExists(t, tempPath)
}

func TestProcessSimpleStoreTempMissing(t *testing.T) {
	env := newTestEnv(t)
	record := env.newCallRecord(t, uuid.New())
	job := env.newJob(t, record.ID, constant.JobTypeSimpleStore)

	err := env.finalizer().ProcessSimpleStore(context.Background(), dto.SimpleStoreMessage{
		JobId:        job.ID,
		CallRecordId: record.ID,
		TempPath:     filepath.Join(t.TempDir(), "gone"),
		FileName:     "call.mp3",
	})
	require.NoError(t, err)

	got := env.jobById(t, job.ID)
	assert.Equal(t, constant.JobStatusCancelled, got.Status)
	assert.Equal(t, constant.CancelReasonUploadNotFound, got.Reason)
}

func TestProcessSimpleStoreRecordMissing(t *testing.T) {
	env := newTestEnv(t)
	missingRecord := uuid.New()
	tempPath := writeTemp(t, "orphan")
	job := env.newJob(t, missingRecord, constant.JobTypeSimpleStore)

	err := env.finalizer().ProcessSimpleStore(context.Background(), dto.SimpleStoreMessage{
		JobId:        job.ID,
		CallRecordId: missingRecord,
		TempPath:     tempPath,
		FileName:     "call.mp3",
	})
	require.NoError(t, err)

	got := env.jobById(t, job.ID)
	assert.Equal(t, constant.JobStatusCancelled, got.Status)
	assert.Equal(t, constant.CancelReasonCallRecordNotFound, got.Reason)
	assert.Equal(t, 0, env.countStoredFiles(t))
	assert.NoFileExists(t, tempPath)
}

// failingStore fails every Put, standing in for a storage outage.
type failingStore struct {
	storage.Store
}

func (f *failingStore) Put(ctx context.Context, r io.Reader, size int64, hint string) (storage.Location, error) {
	return "", errors.New("storage unavailable")
}

func TestProcessSimpleStoreRetryableFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	record := env.newCallRecord(t, uuid.New())
	tempPath := writeTemp(t, "keep me")

	finalizer := NewFinalizeService(env.repo, env.sessions, &failingStore{env.store})
	job := env.newJob(t, record.ID, constant.JobTypeSimpleStore)
	message := dto.SimpleStoreMessage{
		JobId:        job.ID,
		CallRecordId: record.ID,
		TempPath:     tempPath,
		FileName:     "call.mp3",
	}

	// The first two failures reset the job for another attempt and keep
	// the staged temp file in place.
	for attempt := 1; attempt < constant.MaxJobAttempts; attempt++ {
		err := finalizer.ProcessSimpleStore(ctx, message)
		require.Error(t, err)
		got := env.jobById(t, job.ID)
		assert.Equal(t, constant.JobStatusPending, got.Status)
		assert.Equal(t, attempt, got.Attempts)
		assert.FileExists(t, tempPath)
	}

	// The last attempt exhausts the budget and surfaces a permanent
	// failure, still keeping the temp file for manual cleanup.
	err := finalizer.ProcessSimpleStore(ctx, message)
	require.Error(t, err)
	got := env.jobById(t, job.ID)
	assert.Equal(t, constant.JobStatusFailed, got.Status)
	assert.Equal(t, "retries_exhausted", got.Reason)
	assert.FileExists(t, tempPath)
}
