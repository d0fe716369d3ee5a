package redis

import (
	"context"
	"strings"
	"time"

	"github.com/nant-dev/pddikti-bot/internal/infrastructure/external/pddikti"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH CACHE
// Caches registry responses keyed by the normalized search keyword and by
// registration id. Entries expire on TTL; there is no invalidation since the
// registry is the source of truth.
// ══════════════════════════════════════════════════════════════════════════════

// Key prefixes for namespacing Redis keys.
const (
	// PrefixSearch is the prefix for keyword search results.
	PrefixSearch = "pddikti:search:"

	// PrefixDetail is the prefix for student detail records.
	PrefixDetail = "pddikti:detail:"
)

// Default TTL values for cached registry data.
const (
	// TTLSearchResults is the TTL for keyword search results.
	TTLSearchResults = 10 * time.Minute

	// TTLStudentDetail is the TTL for student detail records.
	TTLStudentDetail = 30 * time.Minute
)

// SearchCache caches registry lookups in Redis.
type SearchCache struct {
	cache     *Cache
	searchTTL time.Duration
	detailTTL time.Duration
}

// NewSearchCache creates a SearchCache with default TTLs.
func NewSearchCache(cache *Cache) *SearchCache {
	return &SearchCache{
		cache:     cache,
		searchTTL: TTLSearchResults,
		detailTTL: TTLStudentDetail,
	}
}

// GetSearch returns cached search results for a keyword, or ErrCacheMiss.
func (s *SearchCache) GetSearch(ctx context.Context, keyword string) ([]pddikti.SearchResult, error) {
	var results []pddikti.SearchResult
	if err := s.cache.Get(ctx, searchKey(keyword), &results); err != nil {
		return nil, err
	}
	return results, nil
}

// SetSearch caches search results for a keyword.
func (s *SearchCache) SetSearch(ctx context.Context, keyword string, results []pddikti.SearchResult) error {
	return s.cache.Set(ctx, searchKey(keyword), results, s.searchTTL)
}

// GetDetail returns a cached detail record, or ErrCacheMiss.
func (s *SearchCache) GetDetail(ctx context.Context, registrationID string) (pddikti.StudentDetail, error) {
	var detail pddikti.StudentDetail
	if err := s.cache.Get(ctx, PrefixDetail+registrationID, &detail); err != nil {
		return nil, err
	}
	return detail, nil
}

// SetDetail caches a detail record.
func (s *SearchCache) SetDetail(ctx context.Context, registrationID string, detail pddikti.StudentDetail) error {
	return s.cache.Set(ctx, PrefixDetail+registrationID, detail, s.detailTTL)
}

// searchKey normalizes the keyword so "Budi " and "budi" share an entry.
func searchKey(keyword string) string {
	return PrefixSearch + strings.ToLower(strings.TrimSpace(keyword))
}
