// Package session keeps one pipeline orchestrator per client session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"segment-research/internal/common/config"
	apperrors "segment-research/internal/common/errors"
	"segment-research/internal/common/logger"
	"segment-research/internal/common/metrics"
	"segment-research/internal/models"
	"segment-research/internal/pipeline"
)

var errResetElsewhere = errors.New("session was reset by another request")

// Session pairs session metadata with its pipeline.
type Session struct {
	models.Session
	Orchestrator *pipeline.Orchestrator

	// Record counters this replica last synced from the store.
	version    uint64
	generation uint64
}

// Registry holds live sessions in memory and expires idle ones. With a Store
// the memory map is only a cache: the store holds the authoritative record
// and any replica can serve any session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	runner          pipeline.StageRunner
	locker          Locker
	store           Store
	ttl             time.Duration
	cleanupInterval time.Duration
	logger          logger.Logger
	now             func() time.Time
}

type Option func(*Registry)

// WithLocker sets the lock taken around every advance.
func WithLocker(l Locker) Option {
	return func(r *Registry) {
		if l != nil {
			r.locker = l
		}
	}
}

// WithStore shares session records through store.
func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

func NewRegistry(runner pipeline.StageRunner, cfg config.SessionConfig, log logger.Logger, opts ...Option) *Registry {
	ttl := config.GetDuration(cfg.TTL)
	if ttl <= 0 {
		ttl = time.Hour
	}
	interval := config.GetDuration(cfg.CleanupInterval)
	if interval <= 0 {
		interval = time.Minute
	}
	r := &Registry{
		sessions:        make(map[string]*Session),
		runner:          runner,
		locker:          LocalLocker{},
		ttl:             ttl,
		cleanupInterval: interval,
		logger:          log.With(map[string]interface{}{"component": "session-registry"}),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a new idle pipeline session.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	now := r.now()
	s := &Session{
		Session: models.Session{
			ID:           uuid.NewString(),
			CreatedAt:    now,
			ExpiresAt:    now.Add(r.ttl),
			LastActivity: now,
		},
		Orchestrator: pipeline.NewOrchestrator(r.runner, r.logger),
		version:      1,
	}

	if r.store != nil {
		rec := Record{Session: s.Session, State: s.Orchestrator.Snapshot(), Version: s.version}
		if err := r.store.Create(ctx, rec); err != nil {
			return nil, apperrors.NewSessionStoreError(s.ID, err)
		}
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.SessionsActive.Set(float64(count))
	r.logger.Info("session created", map[string]interface{}{"sessionId": s.ID})
	return s, nil
}

// Get returns a live session and refreshes its expiry.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	now := r.now()
	if r.store == nil {
		r.mu.Lock()
		defer r.mu.Unlock()

		s, ok := r.sessions[id]
		if !ok || s.IsExpired(now) {
			return nil, apperrors.NewSessionNotFoundError(id)
		}
		s.Touch(now, r.ttl)
		return s, nil
	}

	rec, err := r.store.Update(ctx, id, func(rec *Record) error {
		if rec.Session.IsExpired(now) {
			return ErrRecordNotFound
		}
		rec.Session.Touch(now, r.ttl)
		return nil
	})
	if err != nil {
		return nil, r.storeError(id, err)
	}
	return r.adopt(rec), nil
}

// adopt brings the cached session for rec up to date, creating it if this
// replica has not seen the session yet. A stage running locally keeps its
// state; the outcome is settled when the run is persisted.
func (r *Registry) adopt(rec Record) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[rec.Session.ID]
	if !ok {
		s = &Session{Orchestrator: pipeline.NewOrchestrator(r.runner, r.logger)}
		s.Orchestrator.Restore(rec.State)
		s.version, s.generation = rec.Version, rec.Generation
		r.sessions[rec.Session.ID] = s
		metrics.SessionsActive.Set(float64(len(r.sessions)))
	} else if s.version != rec.Version || s.generation != rec.Generation {
		if s.Orchestrator.Restore(rec.State) {
			s.version, s.generation = rec.Version, rec.Generation
		}
	}
	s.Session = rec.Session
	return s
}

// storeError maps store failures onto API errors and drops stale cache entries.
func (r *Registry) storeError(id string, err error) error {
	if errors.Is(err, ErrRecordNotFound) {
		r.forget(id)
		return apperrors.NewSessionNotFoundError(id)
	}
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return apperrors.NewSessionStoreError(id, err)
}

func (r *Registry) forget(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()
	metrics.SessionsActive.Set(float64(count))
}

// Info returns a copy of the session metadata.
func (r *Registry) Info(s *Session) models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return s.Session
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	existed := false
	if r.store != nil {
		var err error
		if existed, err = r.store.Delete(ctx, id); err != nil {
			return apperrors.NewSessionStoreError(id, err)
		}
	}

	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if ok {
		s.Orchestrator.Reset()
	}
	if r.store == nil {
		existed = ok
	}
	if !existed {
		return apperrors.NewSessionNotFoundError(id)
	}
	metrics.SessionsActive.Set(float64(count))
	r.logger.Info("session deleted", map[string]interface{}{"sessionId": id})
	return nil
}

// Advance runs the next stage of a session's pipeline while holding the
// session's advance lock. With a Store the session is re-read under the lock
// and a successful stage is written back before the lock is released.
func (r *Registry) Advance(ctx context.Context, id string, stage pipeline.Stage, in pipeline.StageInput, selected *models.Segment) (pipeline.StageResult, error) {
	unlock, err := r.locker.Lock(ctx, id)
	if err != nil {
		return pipeline.StageResult{Stage: stage}, err
	}
	defer unlock()

	s, err := r.Get(ctx, id)
	if err != nil {
		return pipeline.StageResult{Stage: stage}, err
	}

	r.mu.RLock()
	generation := s.generation
	r.mu.RUnlock()
	before := s.Orchestrator.Snapshot()

	result, err := s.Orchestrator.Advance(ctx, stage, in, selected)
	if err != nil || !result.Succeeded || r.store == nil {
		return result, err
	}

	state := s.Orchestrator.Snapshot()
	var latest Record
	rec, err := r.store.Update(ctx, id, func(rec *Record) error {
		if rec.Generation != generation {
			latest = *rec
			return errResetElsewhere
		}
		rec.State = state
		rec.Version++
		rec.Session.Touch(r.now(), r.ttl)
		return nil
	})
	switch {
	case errors.Is(err, errResetElsewhere):
		r.logger.Warn("discarding stage result after reset on another replica", map[string]interface{}{
			"sessionId": id,
			"stage":     string(stage),
		})
		r.adopt(latest)
		return result, apperrors.NewInvalidTransitionError("reset", string(stage), pipeline.ErrPipelineReset)
	case err != nil:
		// Keep the replica in step with the store, which never saw this stage.
		s.Orchestrator.Restore(before)
		return result, r.storeError(id, err)
	}

	r.mu.Lock()
	s.version = rec.Version
	s.Session = rec.Session
	r.mu.Unlock()
	return result, nil
}

// Reset returns a session to Idle. A stage running anywhere keeps running,
// but its result is thrown away.
func (r *Registry) Reset(ctx context.Context, id string) error {
	if r.store == nil {
		s, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		s.Orchestrator.Reset()
		return nil
	}

	now := r.now()
	rec, err := r.store.Update(ctx, id, func(rec *Record) error {
		if rec.Session.IsExpired(now) {
			return ErrRecordNotFound
		}
		rec.State = pipeline.NewState()
		rec.Version++
		rec.Generation++
		rec.Session.Touch(now, r.ttl)
		return nil
	})
	if err != nil {
		return r.storeError(id, err)
	}

	s := r.adopt(rec)
	s.Orchestrator.Reset()
	r.mu.Lock()
	s.version, s.generation = rec.Version, rec.Generation
	r.mu.Unlock()
	return nil
}

// Sweep drops sessions that expired before now and returns how many. With a
// Store only the local cache is dropped; the store expires records itself.
func (r *Registry) Sweep(now time.Time) int {
	var expired []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.IsExpired(now) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if r.store == nil {
		for _, s := range expired {
			s.Orchestrator.Reset()
		}
	}
	if len(expired) > 0 {
		metrics.SessionsActive.Set(float64(count))
		r.logger.Info("expired sessions removed", map[string]interface{}{
			"removed":   len(expired),
			"remaining": count,
		})
	}
	return len(expired)
}

// Run sweeps expired sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
