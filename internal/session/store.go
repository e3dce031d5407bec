package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"segment-research/internal/common/config"
	"segment-research/internal/common/database"
	"segment-research/internal/models"
	"segment-research/internal/pipeline"
)

// ErrRecordNotFound is returned by a Store for unknown or expired sessions.
var ErrRecordNotFound = errors.New("session record not found")

// Record is the replica-independent copy of a session. Version increases on
// every state change and Generation on every reset.
type Record struct {
	Session    models.Session `json:"session"`
	State      pipeline.State `json:"state"`
	Version    uint64         `json:"version"`
	Generation uint64         `json:"generation"`
}

// Store shares session records between server replicas.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Load(ctx context.Context, id string) (Record, error)
	// Update applies fn to the current record atomically. An error from fn
	// aborts the write and is returned unchanged.
	Update(ctx context.Context, id string, fn func(*Record) error) (Record, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// RedisStore keeps one JSON record per session, expiring with the session TTL.
type RedisStore struct {
	client *database.RedisClient
	ttl    time.Duration
}

func NewRedisStore(client *database.RedisClient, cfg config.SessionConfig) *RedisStore {
	ttl := config.GetDuration(cfg.TTL)
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.client.Key("session", id)
}

func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.Session.ID, err)
	}
	return s.client.Set(ctx, s.key(rec.Session.ID), data, s.ttl)
}

func (s *RedisStore) Load(ctx context.Context, id string) (Record, error) {
	data, err := s.client.Get(ctx, s.key(id))
	if errors.Is(err, database.ErrNotFound) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return rec, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Record) error) (Record, error) {
	var out Record
	err := s.client.Update(ctx, s.key(id), s.ttl, func(current []byte) ([]byte, error) {
		var rec Record
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", id, err)
		}
		if err := fn(&rec); err != nil {
			return nil, err
		}
		out = rec
		return json.Marshal(rec)
	})
	if errors.Is(err, database.ErrNotFound) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(id))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
