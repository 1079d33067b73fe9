package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/internal/domain/puzzle"
	"github.com/codearena/arena-server/internal/domain/shared"
)

const (
	cacheTestUser   = shared.UserID("11111111-2222-3333-4444-555555555555")
	cacheTestLesson = shared.LessonID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
)

// fakeSource counts reads and serves a canned summary per (user, lesson).
type fakeSource struct {
	calls int
	err   error
}

func (f *fakeSource) GetLessonSummary(_ context.Context, userID shared.UserID, lessonID shared.LessonID) (*puzzle.LessonSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return puzzle.NewLessonSummary(userID, lessonID, []puzzle.Observation{
		{LevelNumber: 1, Success: true, Difficulty: shared.DifficultyEasy, AttemptTime: 20},
	}, 1), nil
}

// testClock is a manually advanced time source.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(src *fakeSource, ttl time.Duration, cap int) (*SummaryCache, *testClock) {
	clk := &testClock{now: time.Unix(1700000000, 0).UTC()}
	return NewSummaryCache(src, ttl, cap, WithClock(clk.Now)), clk
}

func TestSummaryCache_ReadThrough(t *testing.T) {
	src := &fakeSource{}
	c, _ := newTestCache(src, time.Minute, 10)
	ctx := context.Background()

	first, err := c.GetLessonSummary(ctx, cacheTestUser, cacheTestLesson)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, src.calls)

	// Second read is served from the cache.
	second, err := c.GetLessonSummary(ctx, cacheTestUser, cacheTestLesson)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, src.calls)
}

func TestSummaryCache_TTLExpiry(t *testing.T) {
	src := &fakeSource{}
	c, clk := newTestCache(src, time.Minute, 10)
	ctx := context.Background()

	_, err := c.GetLessonSummary(ctx, cacheTestUser, cacheTestLesson)
	require.NoError(t, err)

	clk.Advance(time.Minute) // exactly at the TTL: still fresh
	_, err = c.GetLessonSummary(ctx, cacheTestUser, cacheTestLesson)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	clk.Advance(time.Second) // past the TTL: read through again
	_, err = c.GetLessonSummary(ctx, cacheTestUser, cacheTestLesson)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestSummaryCache_LRUEviction(t *testing.T) {
	src := &fakeSource{}
	c, _ := newTestCache(src, time.Hour, 3)
	ctx := context.Background()

	lesson := func(i int) shared.LessonID {
		return shared.LessonID(fmt.Sprintf("aaaaaaaa-bbbb-cccc-dddd-%012d", i))
	}

	for i := 0; i < 3; i++ {
		_, err := c.GetLessonSummary(ctx, cacheTestUser, lesson(i))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Len())

	// Touch lesson 0 so lesson 1 becomes the least recently used, then
	// insert a fourth entry.
	_, err := c.GetLessonSummary(ctx, cacheTestUser, lesson(0))
	require.NoError(t, err)
	_, err = c.GetLessonSummary(ctx, cacheTestUser, lesson(3))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	calls := src.calls
	_, err = c.GetLessonSummary(ctx, cacheTestUser, lesson(0))
	require.NoError(t, err)
	assert.Equal(t, calls, src.calls, "lesson 0 survived the eviction")

	_, err = c.GetLessonSummary(ctx, cacheTestUser, lesson(1))
	require.NoError(t, err)
	assert.Equal(t, calls+1, src.calls, "lesson 1 was evicted")
}

func TestSummaryCache_Prime(t *testing.T) {
	src := &fakeSource{}
	c, _ := newTestCache(src, time.Hour, 10)
	ctx := context.Background()

	first, err := c.GetLessonSummary(ctx, cacheTestUser, cacheTestLesson)
	require.NoError(t, err)
	require.Equal(t, 1, first.TotalAttempts)

	c.Prime(cacheTestUser, cacheTestLesson, puzzle.Observation{
		LevelNumber: 2, Success: false, Difficulty: shared.DifficultyEasy, AttemptTime: 80,
	})

	// The next read observes the write without touching the store.
	got, err := c.GetLessonSummary(ctx, cacheTestUser, cacheTestLesson)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 2, got.TotalAttempts)
	assert.Equal(t, 2, got.Attempts[0].LevelNumber)
	assert.Equal(t, 1, got.FailCount(2))
}

func TestSummaryCache_PrimeOnMiss(t *testing.T) {
	src := &fakeSource{}
	c, _ := newTestCache(src, time.Hour, 10)

	// Priming a cold key seeds a single-entry window instead of reading
	// through.
	c.Prime(cacheTestUser, cacheTestLesson, puzzle.Observation{
		LevelNumber: 7, Success: true, Difficulty: shared.DifficultyMedium, AttemptTime: 25,
	})
	assert.Zero(t, src.calls)

	got, err := c.GetLessonSummary(context.Background(), cacheTestUser, cacheTestLesson)
	require.NoError(t, err)
	assert.Zero(t, src.calls)
	assert.Equal(t, 1, got.TotalAttempts)
	assert.Equal(t, 7, got.Attempts[0].LevelNumber)
}

func TestSummaryCache_Invalidate(t *testing.T) {
	src := &fakeSource{}
	c, _ := newTestCache(src, time.Hour, 10)
	ctx := context.Background()

	_, err := c.GetLessonSummary(ctx, cacheTestUser, cacheTestLesson)
	require.NoError(t, err)

	c.Invalidate(cacheTestUser, cacheTestLesson)
	assert.Zero(t, c.Len())

	_, err = c.GetLessonSummary(ctx, cacheTestUser, cacheTestLesson)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestSummaryCache_Disabled(t *testing.T) {
	src := &fakeSource{}
	c := NewSummaryCache(src, time.Hour, 10, Disabled())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.GetLessonSummary(ctx, cacheTestUser, cacheTestLesson)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, src.calls, "disabled cache always passes through")
	assert.Zero(t, c.Len())
}

func TestSummaryCache_EmptyLessonNeverCached(t *testing.T) {
	src := &fakeSource{}
	c, _ := newTestCache(src, time.Hour, 10)
	ctx := context.Background()

	_, err := c.GetLessonSummary(ctx, cacheTestUser, "")
	require.NoError(t, err)
	_, err = c.GetLessonSummary(ctx, cacheTestUser, "")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)

	c.Prime(cacheTestUser, "", puzzle.Observation{LevelNumber: 1})
	assert.Zero(t, c.Len())
}

func TestSummaryCache_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("store down")}
	c, _ := newTestCache(src, time.Hour, 10)

	_, err := c.GetLessonSummary(context.Background(), cacheTestUser, cacheTestLesson)
	assert.Error(t, err)
	assert.Zero(t, c.Len(), "errors are never cached")
}
