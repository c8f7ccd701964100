package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/domain/repository"
	"OptionsFlow/pkg/cache"
)

const (
	alertIndex   = "index"
	lockTTL      = 2 * time.Second
	lockAttempts = 20
	lockBackoff  = 10 * time.Millisecond
)

// RedisAlertStore keeps alerts as JSON documents with a created-at sorted
// set for ordering, so several engine instances can share one alert set.
type RedisAlertStore struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewRedisAlertStore stores documents with ttl; ttl should be at least the
// alert retention so the manager purges before Redis does.
func NewRedisAlertStore(c *cache.RedisCache, ttl time.Duration) *RedisAlertStore {
	return &RedisAlertStore{cache: c, ttl: ttl}
}

var _ repository.AlertStore = (*RedisAlertStore)(nil)

func (s *RedisAlertStore) Save(ctx context.Context, a *models.Alert) error {
	if err := s.cache.Set(ctx, a.ID, a, s.ttl); err != nil {
		return fmt.Errorf("save alert %s: %w", a.ID, err)
	}
	score := float64(a.CreatedAt.UnixNano())
	if err := s.cache.Index(ctx, alertIndex, a.ID, score); err != nil {
		return fmt.Errorf("index alert %s: %w", a.ID, err)
	}
	return nil
}

func (s *RedisAlertStore) Get(ctx context.Context, id string) (*models.Alert, error) {
	var a models.Alert
	if err := s.cache.Get(ctx, id, &a); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, repository.ErrAlertNotFound
		}
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	return &a, nil
}

// Update applies fn under a short Redis lock on the alert id.
func (s *RedisAlertStore) Update(ctx context.Context, id string, fn func(a *models.Alert)) error {
	if err := s.lock(ctx, id); err != nil {
		return err
	}
	defer func() { _ = s.cache.Unlock(context.WithoutCancel(ctx), id) }()

	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(a)
	if err := s.cache.Set(ctx, id, a, s.ttl); err != nil {
		return fmt.Errorf("update alert %s: %w", id, err)
	}
	return nil
}

func (s *RedisAlertStore) lock(ctx context.Context, id string) error {
	for i := 0; i < lockAttempts; i++ {
		ok, err := s.cache.TryLock(ctx, id, lockTTL)
		if err != nil {
			return fmt.Errorf("lock alert %s: %w", id, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockBackoff):
		}
	}
	return fmt.Errorf("lock alert %s: contention", id)
}

// List returns alerts oldest first. Index members whose document expired are
// pruned from the index.
func (s *RedisAlertStore) List(ctx context.Context) ([]*models.Alert, error) {
	ids, err := s.cache.IndexMembers(ctx, alertIndex)
	if err != nil {
		return nil, fmt.Errorf("list alert index: %w", err)
	}
	docs, err := s.cache.MGet(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	out := make([]*models.Alert, 0, len(docs))
	var stale []string
	for _, id := range ids {
		raw, ok := docs[id]
		if !ok {
			stale = append(stale, id)
			continue
		}
		var a models.Alert
		if err := json.Unmarshal(raw, &a); err != nil {
			stale = append(stale, id)
			continue
		}
		out = append(out, &a)
	}
	if len(stale) > 0 {
		_ = s.cache.IndexRemove(ctx, alertIndex, stale...)
	}
	return out, nil
}

func (s *RedisAlertStore) Delete(ctx context.Context, ids ...string) error {
	if err := s.cache.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("delete alerts: %w", err)
	}
	return s.cache.IndexRemove(ctx, alertIndex, ids...)
}
