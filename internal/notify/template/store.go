// internal/notify/template/store.go
package template

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"notification-service/internal/common/logger"
	"notification-service/internal/models"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "notification:template:"

// Store loads notification templates by key. Lookups go through a short-TTL
// Redis cache; templates change rarely and are edited out-of-band by
// administrators. Absence of a template is not an error — callers supply an
// inline fallback subject/body.
type Store struct {
	db       *sql.DB
	cache    *redis.Client
	cacheTTL time.Duration
	logger   logger.Logger
}

// NewStore creates a template store. cache may be nil, in which case every
// lookup hits Postgres.
func NewStore(db *sql.DB, cache *redis.Client, cacheTTL time.Duration, log logger.Logger) *Store {
	return &Store{
		db:       db,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "template-store"}),
	}
}

// Get returns the template for key, or (nil, nil) when no such template
// exists. Cache failures fall through to the database.
func (s *Store) Get(ctx context.Context, key string) (*models.NotificationTemplate, error) {
	if tmpl := s.fromCache(ctx, key); tmpl != nil {
		return tmpl, nil
	}

	var tmpl models.NotificationTemplate
	var subject sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT key, subject, body_template FROM notification_templates WHERE key = $1`,
		key,
	).Scan(&tmpl.Key, &subject, &tmpl.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", key, err)
	}
	tmpl.Subject = subject.String

	s.toCache(ctx, key, &tmpl)
	return &tmpl, nil
}

func (s *Store) fromCache(ctx context.Context, key string) *models.NotificationTemplate {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, cacheKeyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("template cache read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return nil
	}

	var tmpl models.NotificationTemplate
	if err := json.Unmarshal([]byte(raw), &tmpl); err != nil {
		return nil
	}
	return &tmpl
}

func (s *Store) toCache(ctx context.Context, key string, tmpl *models.NotificationTemplate) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(tmpl)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKeyPrefix+key, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("template cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
