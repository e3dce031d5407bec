package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"segment-research/internal/common/config"
	"segment-research/internal/common/database"
	apperrors "segment-research/internal/common/errors"
	"segment-research/internal/common/logger"
	"segment-research/internal/pipeline"
)

// Locker guards a session's advance across server replicas.
type Locker interface {
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// LocalLocker relies on the orchestrator's own in-process exclusion.
type LocalLocker struct{}

func (LocalLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// RedisLocker takes a short-lived Redis key per session for the duration of
// an advance.
type RedisLocker struct {
	client *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisLocker(client *database.RedisClient, cfg config.SessionConfig, log logger.Logger) *RedisLocker {
	ttl := config.GetDuration(cfg.LockTTL)
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		logger: log.With(map[string]interface{}{"component": "redis-locker"}),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := l.client.Key("advance", sessionID)
	token, err := l.client.AcquireLock(ctx, key, l.ttl)
	if errors.Is(err, database.ErrLockHeld) {
		return nil, apperrors.NewAdvanceInProgressError(
			fmt.Errorf("%w: session %s locked by another replica", pipeline.ErrAdvanceInProgress, sessionID))
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	return func() {
		// The request context may already be cancelled; release on our own deadline.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := l.client.ReleaseLock(releaseCtx, key, token); err != nil {
			l.logger.Warn("failed to release advance lock", map[string]interface{}{
				"sessionId": sessionID,
				"error":     err,
			})
		}
	}, nil
}
