package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"recording-service/repository"
)

func TestReaperSweepCancelsOnlyIdleSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	record := env.newCallRecord(t, uuid.New())

	staleId, err := env.sessions.Init(ctx, record.ID, 2)
	require.NoError(t, err)
	env.append(t, staleId, 0, "stale chunk")

	// Let the first session go idle past the cutoff, then start a fresh one.
	time.Sleep(60 * time.Millisecond)

	freshId, err := env.sessions.Init(ctx, record.ID, 2)
	require.NoError(t, err)
	env.append(t, freshId, 0, "fresh chunk")

	reaper := NewReaper(env.repo, env.sessions, 50*time.Millisecond, time.Minute)
	reaper.Sweep(ctx)

	_, err = env.repo.FindUploadSessionById(ctx, staleId)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	_, err = env.repo.FindUploadSessionById(ctx, freshId)
	assert.NoError(t, err)

	// The stale session's staged chunk is reclaimed with it.
	assert.Equal(t, 1, env.countStoredFiles(t))
}

func TestReaperSweepIsQuietWhenNothingIsIdle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	record := env.newCallRecord(t, uuid.New())

	sessionId, err := env.sessions.Init(ctx, record.ID, 1)
	require.NoError(t, err)

	NewReaper(env.repo, env.sessions, time.Hour, time.Minute).Sweep(ctx)

	_, err = env.repo.FindUploadSessionById(ctx, sessionId)
	assert.NoError(t, err)
}
