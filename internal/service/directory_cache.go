package service

import (
	"context"
	"time"

	"github.com/noah-isme/sma-risk-engine/pkg/cache"
)

// CachedDirectory memoises directory lookups in Redis. Lookups are keyed per
// tenant so one tenant never observes another's assignments. Cache failures
// fall through to the wrapped provider.
type CachedDirectory struct {
	next  DirectoryProvider
	cache *CacheService
	ttl   time.Duration
}

// NewCachedDirectory wraps next with cache. A disabled cache makes it a pass-through.
func NewCachedDirectory(next DirectoryProvider, cacheSvc *CacheService, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{next: next, cache: cacheSvc, ttl: ttl}
}

// TeachersForClass implements DirectoryProvider.
func (d *CachedDirectory) TeachersForClass(ctx context.Context, tenantID, classID string) ([]string, error) {
	return d.lookup(ctx, "class", tenantID, classID, d.next.TeachersForClass)
}

// TeachersForGrade implements DirectoryProvider.
func (d *CachedDirectory) TeachersForGrade(ctx context.Context, tenantID, grade string) ([]string, error) {
	return d.lookup(ctx, "grade", tenantID, grade, d.next.TeachersForGrade)
}

// TeachersForSubject implements DirectoryProvider.
func (d *CachedDirectory) TeachersForSubject(ctx context.Context, tenantID, subjectID string) ([]string, error) {
	return d.lookup(ctx, "subject", tenantID, subjectID, d.next.TeachersForSubject)
}

// TeachersForStudent implements DirectoryProvider.
func (d *CachedDirectory) TeachersForStudent(ctx context.Context, tenantID, studentID string) ([]string, error) {
	return d.lookup(ctx, "student", tenantID, studentID, d.next.TeachersForStudent)
}

// Invalidate drops every cached lookup of a tenant.
func (d *CachedDirectory) Invalidate(ctx context.Context, tenantID string) error {
	return d.cache.Invalidate(ctx, cache.Key("directory", tenantID, "*"))
}

func (d *CachedDirectory) lookup(ctx context.Context, kind, tenantID, id string, load func(context.Context, string, string) ([]string, error)) ([]string, error) {
	key := cache.Key("directory", tenantID, kind, id)
	var ids []string
	if hit, err := d.cache.Get(ctx, key, &ids); err == nil && hit {
		return ids, nil
	}
	ids, err := load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	_ = d.cache.Set(ctx, key, ids, d.ttl)
	return ids, nil
}
