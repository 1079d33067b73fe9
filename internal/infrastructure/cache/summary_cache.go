// Package cache holds process-local caches: the per-lesson performance
// summary window consumed by the difficulty rule engine.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/codearena/arena-server/internal/domain/puzzle"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/metrics"
)

// SummaryCache is a read-through TTL+LRU cache over the attempt store.
// Entries expire after the TTL; inserts past the capacity evict the least
// recently used entry. Safe for concurrent use.
type SummaryCache struct {
	source puzzle.SummarySource
	ttl    time.Duration
	cap    int

	mu    sync.Mutex
	items map[summaryKey]*list.Element
	lru   *list.List // front = most recently used

	enabled bool
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type summaryKey struct {
	userID   shared.UserID
	lessonID shared.LessonID
}

type summaryEntry struct {
	key      summaryKey
	summary  *puzzle.LessonSummary
	storedAt time.Time
}

// Option configures the cache.
type Option func(*SummaryCache)

// WithLogger attaches a logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *SummaryCache) { c.log = log }
}

// WithMetrics attaches the metrics set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *SummaryCache) { c.metrics = m }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *SummaryCache) { c.now = now }
}

// Disabled makes every read pass through to the source.
func Disabled() Option {
	return func(c *SummaryCache) { c.enabled = false }
}

// NewSummaryCache creates a cache over the given source.
func NewSummaryCache(source puzzle.SummarySource, ttl time.Duration, maxEntries int, opts ...Option) *SummaryCache {
	c := &SummaryCache{
		source:  source,
		ttl:     ttl,
		cap:     maxEntries,
		items:   make(map[summaryKey]*list.Element),
		lru:     list.New(),
		enabled: true,
		log:     logger.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetLessonSummary returns the cached summary or reads through to the
// attempt store. An empty lesson id is never cached.
func (c *SummaryCache) GetLessonSummary(ctx context.Context, userID shared.UserID, lessonID shared.LessonID) (*puzzle.LessonSummary, error) {
	if !c.enabled || lessonID.IsEmpty() {
		return c.source.GetLessonSummary(ctx, userID, lessonID)
	}

	key := summaryKey{userID: userID, lessonID: lessonID}
	if s, ok := c.lookup(key); ok {
		c.observe("hit")
		return s, nil
	}
	c.observe("miss")

	s, err := c.source.GetLessonSummary(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	c.store(key, s)
	return s, nil
}

// Prime merges a just-written attempt into the cached window so the user's
// next read observes their own write. A miss primes a fresh single-entry
// window rather than forcing a store round-trip.
func (c *SummaryCache) Prime(userID shared.UserID, lessonID shared.LessonID, obs puzzle.Observation) {
	if !c.enabled || lessonID.IsEmpty() {
		return
	}

	key := summaryKey{userID: userID, lessonID: lessonID}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		entry := el.Value.(*summaryEntry)
		if c.now().Sub(entry.storedAt) <= c.ttl {
			entry.summary.Prepend(obs)
			entry.storedAt = c.now()
			c.lru.MoveToFront(el)
			c.observeLocked("primed")
			return
		}
		c.removeLocked(el)
	}

	fresh := puzzle.NewLessonSummary(userID, lessonID, []puzzle.Observation{obs}, 1)
	c.storeLocked(key, fresh)
	c.observeLocked("primed")
}

// Invalidate drops one entry.
func (c *SummaryCache) Invalidate(userID shared.UserID, lessonID shared.LessonID) {
	key := summaryKey{userID: userID, lessonID: lessonID}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Len returns the live entry count.
func (c *SummaryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *SummaryCache) lookup(key summaryKey) (*puzzle.LessonSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*summaryEntry)
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.removeLocked(el)
		return nil, false
	}
	c.lru.MoveToFront(el)
	return entry.summary, true
}

func (c *SummaryCache) store(key summaryKey, s *puzzle.LessonSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
	c.storeLocked(key, s)
}

func (c *SummaryCache) storeLocked(key summaryKey, s *puzzle.LessonSummary) {
	for c.lru.Len() >= c.cap {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.observeLocked("evicted")
	}
	el := c.lru.PushFront(&summaryEntry{key: key, summary: s, storedAt: c.now()})
	c.items[key] = el
}

func (c *SummaryCache) removeLocked(el *list.Element) {
	entry := el.Value.(*summaryEntry)
	delete(c.items, entry.key)
	c.lru.Remove(el)
}

func (c *SummaryCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.SummaryCacheOps.WithLabelValues(result).Inc()
	}
}

// observeLocked exists only to mark call sites already under the mutex;
// the metric itself is lock-free.
func (c *SummaryCache) observeLocked(result string) {
	c.observe(result)
}
