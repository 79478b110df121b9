package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

const defaultCacheTTL = 5 * time.Minute

// Service resolves actors from user ids. Grants are cached in Redis and
// concurrent misses for one user share a single load.
type Service struct {
	loader Loader
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a Service. A nil client disables caching.
func NewService(loader Loader, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{loader: loader, redis: client, ttl: ttl, logger: logger}
}

// Resolve returns the actor for userID with its effective permissions.
func (s *Service) Resolve(ctx context.Context, userID int64) (shared.Actor, error) {
	if userID <= 0 {
		return shared.Actor{}, fmt.Errorf("%w: invalid user id", shared.ErrUnauthorized)
	}
	grants, err := s.Grants(ctx, userID)
	if err != nil {
		return shared.Actor{}, err
	}
	return shared.Actor{ID: userID, Role: grants.Role, Permissions: grants.Permissions}, nil
}

// EffectivePermissions returns deduplicated permission names for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	grants, err := s.Grants(ctx, userID)
	if err != nil {
		return nil, err
	}
	return grants.Permissions, nil
}

// Grants returns the cached grants of userID, loading them on a miss.
func (s *Service) Grants(ctx context.Context, userID int64) (Grants, error) {
	key := cacheKey(userID)
	if grants, ok := s.cached(ctx, key); ok {
		return grants, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		grants, err := s.loader.LoadGrants(ctx, userID)
		if err != nil {
			return Grants{}, err
		}
		grants.Permissions = normalizePermissions(grants.Permissions)
		s.store(ctx, key, grants)
		return grants, nil
	})
	if err != nil {
		return Grants{}, err
	}
	return v.(Grants), nil
}

// Invalidate drops the cached grants of userID.
func (s *Service) Invalidate(ctx context.Context, userID int64) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, cacheKey(userID)).Err()
}

func (s *Service) cached(ctx context.Context, key string) (Grants, bool) {
	if s.redis == nil {
		return Grants{}, false
	}
	raw, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("rbac cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return Grants{}, false
	}
	var grants Grants
	if err := json.Unmarshal(raw, &grants); err != nil {
		s.logger.Warn("rbac cache entry corrupt", slog.String("key", key), slog.Any("error", err))
		return Grants{}, false
	}
	return grants, true
}

func (s *Service) store(ctx context.Context, key string, grants Grants) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(grants)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("rbac cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func cacheKey(userID int64) string {
	return cache.Key("rbac", "grants", strconv.FormatInt(userID, 10))
}
