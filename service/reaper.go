package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"recording-service/repository"
)

// Reaper cancels upload sessions that stopped receiving chunks. The idle
// cutoff is policy, not part of the session state machine; a reaped session
// simply becomes SessionNotFound to any late append or finalize.
type Reaper struct {
	repo     repository.Repository
	sessions SessionStore
	idleAge  time.Duration
	interval time.Duration
}

func NewReaper(repo repository.Repository, sessions SessionStore, idleAge, interval time.Duration) *Reaper {
	return &Reaper{
		repo:     repo,
		sessions: sessions,
		idleAge:  idleAge,
		interval: interval,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep cancels every session idle past the cutoff. Exposed separately from
// Run so it can be invoked directly.
func (r *Reaper) Sweep(ctx context.Context) {
	idle, err := r.repo.ListIdleSessions(ctx, time.Now().Add(-r.idleAge))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to list idle sessions")
		return
	}
	for _, session := range idle {
		if err := r.sessions.Cancel(ctx, session.ID); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("session_id", session.ID.String()).Msg("failed to cancel idle session")
			continue
		}
		zerolog.Ctx(ctx).Info().
			Str("session_id", session.ID.String()).
			Time("last_activity", session.UpdatedAt).
			Msg("reclaimed idle upload session")
	}
}
