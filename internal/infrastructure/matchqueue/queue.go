// Package matchqueue runs the matchmaking engine: a single actor goroutine
// owns the waiting tickets, drains them on a fixed tick through the two
// clustering phases, and hands accepted groups to the match former. All queue
// mutations flow through the command channel, so no lock guards the tickets.
package matchqueue

import (
	"context"
	"time"

	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/internal/domain/matchmaking"
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/metrics"
)

// FormResult reports one formed match and any tickets the former ejected.
type FormResult struct {
	MatchID shared.MatchID

	// Dropped lists users removed from the queue during formation, for
	// example after an entry-fee debit failed. Their tickets do not return.
	Dropped []shared.UserID
}

// Former turns an accepted group into a persisted match. On error the group's
// surviving tickets return to the queue for the next pass.
type Former interface {
	FormMatch(ctx context.Context, group []matchmaking.Ticket, sel *matchmaking.Selection, phase int) (*FormResult, error)
}

// WaiterSource fuses DB-pending solo matches into the candidate pool.
type WaiterSource interface {
	PendingWaiters(ctx context.Context) ([]matchmaking.Ticket, error)
}

// OnlineChecker filters the pool down to players currently online.
type OnlineChecker interface {
	OnlineSet(ctx context.Context, ids []shared.UserID) (map[shared.UserID]bool, error)
}

// ─────────────────────────────────────────────────────────────────────────────

type commandKind int

const (
	cmdEnqueue commandKind = iota
	cmdDequeue
	cmdSnapshot
)

type command struct {
	kind    commandKind
	ticket  matchmaking.Ticket
	userID  shared.UserID
	replyE  chan error
	replyB  chan bool
	replyS  chan []matchmaking.Ticket
}

// Queue is the matchmaking actor.
type Queue struct {
	former   Former
	kernel   adaptive.Kernel
	waiters  WaiterSource
	online   OnlineChecker
	notifier notification.Notifier
	log      *logger.Logger
	metrics  *metrics.Metrics

	tick    time.Duration
	tickets []matchmaking.Ticket

	cmds chan command
	done chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithKernel routes clustering through the remote skill matcher before the
// local fallback.
func WithKernel(k adaptive.Kernel) Option {
	return func(q *Queue) { q.kernel = k }
}

// WithWaiterSource fuses DB-pending matches into each pass.
func WithWaiterSource(w WaiterSource) Option {
	return func(q *Queue) { q.waiters = w }
}

// WithOnlineChecker drops offline players from the candidate pool.
func WithOnlineChecker(o OnlineChecker) Option {
	return func(q *Queue) { q.online = o }
}

// WithMetrics records queue depth and formation counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithTick overrides the pass interval, for tests.
func WithTick(d time.Duration) Option {
	return func(q *Queue) { q.tick = d }
}

// New creates a stopped queue. Run starts the actor.
func New(former Former, notifier notification.Notifier, log *logger.Logger, opts ...Option) *Queue {
	if log == nil {
		log = logger.Default()
	}
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	q := &Queue{
		former:   former,
		notifier: notifier,
		log:      log.With(logger.Component("matchqueue")),
		tick:     matchmaking.TickInterval,
		cmds:     make(chan command),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Run owns the tickets until the context is cancelled. Call it in its own
// goroutine; all other methods are safe from any goroutine.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	ticker := time.NewTicker(q.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-q.cmds:
			q.handle(cmd)
		case <-ticker.C:
			q.pass(ctx)
		}
	}
}

// Enqueue adds a waiting player. Duplicate users get
// shared.ErrQueueEntryExists.
func (q *Queue) Enqueue(ctx context.Context, t matchmaking.Ticket) error {
	replyE := make(chan error, 1)
	select {
	case q.cmds <- command{kind: cmdEnqueue, ticket: t, replyE: replyE}:
		return <-replyE
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return shared.ErrInvalidState
	}
}

// Dequeue removes a user's ticket; returns false when the user was not
// waiting. Called on leave_matchmaking and on socket disconnect.
func (q *Queue) Dequeue(ctx context.Context, userID shared.UserID) bool {
	replyB := make(chan bool, 1)
	select {
	case q.cmds <- command{kind: cmdDequeue, userID: userID, replyB: replyB}:
		return <-replyB
	case <-ctx.Done():
		return false
	case <-q.done:
		return false
	}
}

// Snapshot returns a copy of the waiting tickets.
func (q *Queue) Snapshot(ctx context.Context) []matchmaking.Ticket {
	replyS := make(chan []matchmaking.Ticket, 1)
	select {
	case q.cmds <- command{kind: cmdSnapshot, replyS: replyS}:
		return <-replyS
	case <-ctx.Done():
		return nil
	case <-q.done:
		return nil
	}
}

func (q *Queue) handle(cmd command) {
	switch cmd.kind {
	case cmdEnqueue:
		cmd.replyE <- q.enqueue(cmd.ticket)
	case cmdDequeue:
		cmd.replyB <- q.remove(cmd.userID)
	case cmdSnapshot:
		out := make([]matchmaking.Ticket, len(q.tickets))
		copy(out, q.tickets)
		cmd.replyS <- out
	}
	q.observeDepth()
}

func (q *Queue) enqueue(t matchmaking.Ticket) error {
	for _, existing := range q.tickets {
		if existing.UserID == t.UserID {
			return shared.ErrQueueEntryExists
		}
	}
	t.MatchSize = matchmaking.ClampMatchSize(t.MatchSize)
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	q.tickets = append(q.tickets, t)
	q.log.Debug("player enqueued",
		logger.UserID(t.UserID.String()),
		logger.String("language", t.Language),
		logger.Int("match_size", t.MatchSize),
	)
	return nil
}

func (q *Queue) remove(userID shared.UserID) bool {
	for i, t := range q.tickets {
		if t.UserID == userID {
			q.tickets = append(q.tickets[:i], q.tickets[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) observeDepth() {
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(len(q.tickets)))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// MATCHING PASS
// ─────────────────────────────────────────────────────────────────────────────

// pass runs one full drain: fuse DB waiters, filter to online players, then
// phase 1 (same rank, score ≥ 0.2) and phase 2 (cross rank, score ≥ 0.15).
func (q *Queue) pass(ctx context.Context) {
	pool := q.candidatePool(ctx)
	if len(pool) < matchmaking.MinGroupSize {
		q.broadcastStatus(pool)
		return
	}

	remaining := q.runPhase(ctx, pool, 1)
	remaining = q.runPhase(ctx, remaining, 2)
	q.broadcastStatus(remaining)
	q.observeDepth()
}

// candidatePool fuses local tickets with DB-pending waiters and keeps only
// online players. Offline tickets stay queued; they simply sit the pass out.
func (q *Queue) candidatePool(ctx context.Context) []matchmaking.Ticket {
	pool := make([]matchmaking.Ticket, len(q.tickets))
	copy(pool, q.tickets)

	if q.waiters != nil {
		fused, err := q.waiters.PendingWaiters(ctx)
		if err != nil {
			q.log.Warn("pending waiter fusion failed", logger.Err(err))
		} else {
			seen := make(map[shared.UserID]bool, len(pool))
			for _, t := range pool {
				seen[t.UserID] = true
			}
			for _, t := range fused {
				if !seen[t.UserID] {
					pool = append(pool, t)
					seen[t.UserID] = true
				}
			}
		}
	}

	if q.online == nil || len(pool) == 0 {
		return pool
	}
	ids := make([]shared.UserID, 0, len(pool))
	for _, t := range pool {
		ids = append(ids, t.UserID)
	}
	online, err := q.online.OnlineSet(ctx, ids)
	if err != nil {
		q.log.Warn("online filter failed, keeping full pool", logger.Err(err))
		return pool
	}
	filtered := pool[:0]
	for _, t := range pool {
		if online[t.UserID] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// runPhase buckets the pool by the phase's group key and repeatedly selects
// the best sub-group from each bucket until nothing clears the score gate.
func (q *Queue) runPhase(ctx context.Context, pool []matchmaking.Ticket, phase int) []matchmaking.Ticket {
	minScore := matchmaking.PhaseOneMinScore
	key := func(t matchmaking.Ticket) matchmaking.GroupKey { return t.PhaseOneKey() }
	if phase == 2 {
		minScore = matchmaking.PhaseTwoMinScore
		key = func(t matchmaking.Ticket) matchmaking.GroupKey { return t.PhaseTwoKey() }
	}

	buckets := make(map[matchmaking.GroupKey][]matchmaking.Ticket)
	order := make([]matchmaking.GroupKey, 0)
	for _, t := range pool {
		k := key(t)
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], t)
	}

	var leftovers []matchmaking.Ticket
	for _, k := range order {
		group := buckets[k]
		size := k.MatchSize
		for len(group) >= size {
			sel, ok := q.selectGroup(ctx, group, size, minScore)
			if !ok {
				break
			}
			formed, rest := splitSelection(group, sel)
			if q.form(ctx, formed, sel, phase) {
				group = rest
				continue
			}
			break
		}
		leftovers = append(leftovers, group...)
	}
	return leftovers
}

// selectGroup asks the kernel matcher first and falls back to the in-process
// enumeration when the kernel is unreachable.
func (q *Queue) selectGroup(ctx context.Context, candidates []matchmaking.Ticket, size int, minScore float64) (*matchmaking.Selection, bool) {
	if q.kernel != nil {
		result, err := q.kernel.ClusterPlayers(ctx, matchmaking.ToClusterRequest(candidates, size, minScore))
		if err == nil && len(result.UserIDs) == size {
			return &matchmaking.Selection{
				UserIDs:    result.UserIDs,
				MatchScore: result.MatchScore,
				ClusterID:  result.ClusterID,
			}, true
		}
		if err != nil {
			q.log.Debug("kernel clustering unavailable, using local selection", logger.Err(err))
		}
	}
	return matchmaking.SelectGroup(candidates, size, minScore)
}

// form hands the group to the former. Ejected tickets leave the queue; on a
// transient error everything stays for the next pass.
func (q *Queue) form(ctx context.Context, group []matchmaking.Ticket, sel *matchmaking.Selection, phase int) bool {
	result, err := q.former.FormMatch(ctx, group, sel, phase)
	if err != nil {
		q.log.Warn("match formation failed",
			logger.Int("group_size", len(group)),
			logger.Err(err),
		)
		if result != nil {
			for _, id := range result.Dropped {
				q.remove(id)
			}
		}
		return false
	}

	for _, t := range group {
		q.remove(t.UserID)
	}
	if q.metrics != nil {
		q.metrics.MatchesFormed.WithLabelValues(phaseLabel(phase)).Inc()
	}
	q.log.Info("match formed",
		logger.MatchID(result.MatchID.String()),
		logger.Int("group_size", len(group)),
		logger.Float64("match_score", sel.MatchScore),
		logger.Int("phase", phase),
	)
	return true
}

// broadcastStatus tells each still-waiting socket player how full their
// bucket is. Solo waiters get nothing: there is no partial group to report
// until a second compatible player shows up, and full buckets already formed.
func (q *Queue) broadcastStatus(pool []matchmaking.Ticket) {
	buckets := make(map[matchmaking.GroupKey][]matchmaking.Ticket)
	for _, t := range pool {
		buckets[t.PhaseTwoKey()] = append(buckets[t.PhaseTwoKey()], t)
	}
	for k, group := range buckets {
		if len(group) < 2 || len(group) >= matchmaking.MinGroupSize {
			continue
		}
		waiters := make([]map[string]any, 0, len(group))
		for _, t := range group {
			waiters = append(waiters, map[string]any{
				"user_id":      t.UserID.String(),
				"display_name": t.DisplayName,
				"rank_name":    t.RankName,
			})
		}
		payload := map[string]any{
			"current_count":  len(group),
			"required_count": k.MatchSize,
			"participants":   waiters,
		}
		for _, t := range group {
			if t.PendingMatchID.IsEmpty() {
				q.notifier.Emit(notification.UserRoom(t.UserID), notification.EventQueueUpdate, notification.Stamp(payload))
			}
		}
	}
}

// splitSelection partitions the bucket into the selected group and the rest.
func splitSelection(group []matchmaking.Ticket, sel *matchmaking.Selection) (formed, rest []matchmaking.Ticket) {
	selected := make(map[shared.UserID]bool, len(sel.UserIDs))
	for _, id := range sel.UserIDs {
		selected[id] = true
	}
	for _, t := range group {
		if selected[t.UserID] {
			formed = append(formed, t)
		} else {
			rest = append(rest, t)
		}
	}
	return formed, rest
}

func phaseLabel(phase int) string {
	if phase == 2 {
		return "2"
	}
	return "1"
}
