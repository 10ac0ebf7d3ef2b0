package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/acmecorp/go-mobile-access/core"
)

const (
	passCacheKeyPrefix       = "go-mobile-access::pass::v1"
	userPassesCacheKeyPrefix = "go-mobile-access::user_passes::v1"
)

// CachedPassStore fronts a pass store with a read-through cache. Writes
// go to the base store and invalidate both the pass entry and the
// owner's list entry.
type CachedPassStore struct {
	base  core.PassStore
	cache repositorycache.CacheService
}

func NewCachedPassStore(base core.PassStore, cacheService repositorycache.CacheService) (*CachedPassStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base pass store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: pass cache service is required")
	}
	return &CachedPassStore{base: base, cache: cacheService}, nil
}

// PassCacheKey returns the deterministic cache key contract for pass
// reads: go-mobile-access::pass::v1::<pass_id> with the id segment
// URL-path escaped.
func PassCacheKey(passID string) (string, error) {
	passID = strings.TrimSpace(passID)
	if passID == "" {
		return "", fmt.Errorf("sqlstore: pass id is required")
	}
	return passCacheKeyPrefix + "::" + url.PathEscape(passID), nil
}

// UserPassesCacheKey returns the cache key for a user's pass list.
func UserPassesCacheKey(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("sqlstore: user id is required")
	}
	return userPassesCacheKeyPrefix + "::" + url.PathEscape(userID), nil
}

func (s *CachedPassStore) Get(ctx context.Context, passID string) (core.Pass, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Pass{}, fmt.Errorf("sqlstore: cached pass store is not configured")
	}
	cacheKey, err := PassCacheKey(passID)
	if err != nil {
		return core.Pass{}, err
	}

	pass, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Pass, error) {
		fetched, fetchErr := s.base.Get(ctx, strings.TrimSpace(passID))
		if fetchErr != nil {
			return core.Pass{}, fetchErr
		}
		return clonePass(fetched), nil
	})
	if err != nil {
		return core.Pass{}, err
	}
	return clonePass(pass), nil
}

func (s *CachedPassStore) ListByUser(ctx context.Context, userID string) ([]core.Pass, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached pass store is not configured")
	}
	cacheKey, err := UserPassesCacheKey(userID)
	if err != nil {
		return nil, err
	}

	passes, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.Pass, error) {
		fetched, fetchErr := s.base.ListByUser(ctx, strings.TrimSpace(userID))
		if fetchErr != nil {
			return nil, fetchErr
		}
		return clonePasses(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return clonePasses(passes), nil
}

func (s *CachedPassStore) Upsert(ctx context.Context, pass core.Pass) (core.Pass, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Pass{}, fmt.Errorf("sqlstore: cached pass store is not configured")
	}
	stored, err := s.base.Upsert(ctx, pass)
	if err != nil {
		return core.Pass{}, err
	}

	if cacheKey, keyErr := PassCacheKey(stored.PassID); keyErr == nil {
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return core.Pass{}, err
		}
	}
	if cacheKey, keyErr := UserPassesCacheKey(stored.UserID); keyErr == nil {
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return core.Pass{}, err
		}
	}
	return stored, nil
}

func clonePass(pass core.Pass) core.Pass {
	cloned := pass
	cloned.TokenIssuedAt = cloneTimePointer(pass.TokenIssuedAt)
	return cloned
}

func clonePasses(passes []core.Pass) []core.Pass {
	out := make([]core.Pass, 0, len(passes))
	for _, pass := range passes {
		out = append(out, clonePass(pass))
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

var _ core.PassStore = (*CachedPassStore)(nil)
