// Package corpus serves ayah lookups for the fluency gate and queue
// payloads. Page contents are immutable once seeded, so reads go through a
// cache: Redis when configured (shared across pods), an in-process map
// otherwise.
package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/core"
)

// Store is the persistence surface the corpus reads from.
type Store interface {
	AyahsByPage(ctx context.Context, page int) ([]core.Ayah, error)
	SeededPages(ctx context.Context) ([]int, error)
	CorpusCount(ctx context.Context) (int, error)
}

// Cache is the minimal byte-cache interface; any Redis library can satisfy
// it. cmd/server injects the concrete go-redis client.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Service is a read-through cache over the seeded corpus.
type Service struct {
	store  Store
	cache  Cache
	logger *zap.Logger

	mu    sync.RWMutex
	pages map[int][]core.Ayah // in-process fallback, immutable entries
	list  []int
}

// cacheTTL bounds staleness after a reseed; the corpus otherwise never moves.
const cacheTTL = 24 * time.Hour

// NewService builds the corpus service. cache may be nil.
func NewService(store Store, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		cache:  cache,
		logger: logger,
		pages:  make(map[int][]core.Ayah),
	}
}

// Page returns the ayahs of one mushaf page.
func (s *Service) Page(ctx context.Context, page int) ([]core.Ayah, error) {
	s.mu.RLock()
	if ayahs, ok := s.pages[page]; ok {
		s.mu.RUnlock()
		return ayahs, nil
	}
	s.mu.RUnlock()

	key := fmt.Sprintf("corpus:page:%d", page)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil && len(raw) > 0 {
			var ayahs []core.Ayah
			if err := json.Unmarshal(raw, &ayahs); err == nil {
				s.remember(page, ayahs)
				return ayahs, nil
			}
		}
	}

	ayahs, err := s.store.AyahsByPage(ctx, page)
	if err != nil {
		return nil, err
	}
	s.remember(page, ayahs)

	if s.cache != nil {
		if raw, err := json.Marshal(ayahs); err == nil {
			if err := s.cache.Set(ctx, key, raw, cacheTTL); err != nil {
				s.logger.Warn("corpus cache write failed", zap.Int("page", page), zap.Error(err))
			}
		}
	}
	return ayahs, nil
}

func (s *Service) remember(page int, ayahs []core.Ayah) {
	s.mu.Lock()
	s.pages[page] = ayahs
	s.mu.Unlock()
}

// Pages returns the distinct seeded page numbers.
func (s *Service) Pages(ctx context.Context) ([]int, error) {
	s.mu.RLock()
	if s.list != nil {
		list := s.list
		s.mu.RUnlock()
		return list, nil
	}
	s.mu.RUnlock()

	pages, err := s.store.SeededPages(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.list = pages
	s.mu.Unlock()
	return pages, nil
}

// Seeded reports whether the corpus holds any rows at all.
func (s *Service) Seeded(ctx context.Context) (bool, error) {
	n, err := s.store.CorpusCount(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
