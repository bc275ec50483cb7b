package store

import (
	"context"
	"time"

	"github.com/park285/cubetimer/internal/cache"
	"github.com/park285/cubetimer/internal/domain"
	"go.uber.org/zap"
)

const DefaultProfileCacheTTL = 6 * time.Hour

// CachedProfiles serves profile snapshots from Redis in front of another
// Store. Updates write through; cache failures fall back to the inner store.
type CachedProfiles struct {
	Store
	cache  *cache.CacheService
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedProfiles(inner Store, c *cache.CacheService, ttl time.Duration, logger *zap.Logger) *CachedProfiles {
	if ttl <= 0 {
		ttl = DefaultProfileCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProfiles{Store: inner, cache: c, ttl: ttl, logger: logger}
}

func profileCacheKey(ownerID string) string { return "profile:" + ownerID }

func (s *CachedProfiles) GetProfileSnapshot(ctx context.Context, ownerID string) (*domain.ProfileSnapshot, error) {
	var snap domain.ProfileSnapshot
	found, err := s.cache.GetJSON(ctx, profileCacheKey(ownerID), &snap)
	if err != nil {
		s.logger.Warn("profile_cache_read_failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
	if found && snap.OwnerID != "" {
		return &snap, nil
	}

	stored, err := s.Store.GetProfileSnapshot(ctx, ownerID)
	if err != nil || stored == nil {
		return stored, err
	}
	s.put(ctx, stored)
	return stored, nil
}

func (s *CachedProfiles) UpdateProfileSnapshot(ctx context.Context, snap *domain.ProfileSnapshot) error {
	if snap == nil {
		return s.Store.UpdateProfileSnapshot(ctx, snap)
	}
	if err := s.Store.UpdateProfileSnapshot(ctx, snap); err != nil {
		// the old cached value may no longer match what the store holds
		_ = s.cache.Delete(ctx, profileCacheKey(snap.OwnerID))
		return err
	}
	s.put(ctx, snap)
	return nil
}

func (s *CachedProfiles) put(ctx context.Context, snap *domain.ProfileSnapshot) {
	if err := s.cache.SetJSON(ctx, profileCacheKey(snap.OwnerID), snap, s.ttl); err != nil {
		s.logger.Warn("profile_cache_write_failed", zap.String("owner_id", snap.OwnerID), zap.Error(err))
	}
}
