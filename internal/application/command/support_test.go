package command

import (
	"context"
	"sync"
	"time"

	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/progression"
	"github.com/codearena/arena-server/internal/domain/puzzle"
	"github.com/codearena/arena-server/internal/domain/session"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// In-memory repositories backing the command handler tests. Every fake keeps
// the same contract as its postgres counterpart (not-found errors, idempotent
// inserts, row creation on GetOrCreate) minus the locking, which a
// single-goroutine test does not need.

type progressKey struct {
	user  shared.UserID
	level shared.LevelID
}

type memLevels struct {
	levels  map[shared.LevelID]*puzzle.Level
	lessons map[shared.LessonID]*puzzle.Lesson
}

func newMemLevels() *memLevels {
	return &memLevels{
		levels:  map[shared.LevelID]*puzzle.Level{},
		lessons: map[shared.LessonID]*puzzle.Lesson{},
	}
}

func (m *memLevels) GetByID(_ context.Context, id shared.LevelID) (*puzzle.Level, error) {
	if lvl, ok := m.levels[id]; ok {
		cp := *lvl
		return &cp, nil
	}
	return nil, shared.ErrLevelNotFound
}

func (m *memLevels) FindVariant(_ context.Context, lessonID shared.LessonID, number int, d shared.Difficulty) (*puzzle.Level, error) {
	for _, lvl := range m.levels {
		if lvl.LessonID == lessonID && lvl.LevelNumber == number && lvl.Difficulty == d {
			cp := *lvl
			return &cp, nil
		}
	}
	return nil, shared.ErrLevelNotFound
}

func (m *memLevels) GetLesson(_ context.Context, id shared.LessonID) (*puzzle.Lesson, error) {
	if l, ok := m.lessons[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, shared.ErrNotFound
}

func (m *memLevels) PickRandom(_ context.Context, d shared.Difficulty) (*puzzle.Level, error) {
	for _, lvl := range m.levels {
		if lvl.Difficulty == d {
			cp := *lvl
			return &cp, nil
		}
	}
	return nil, shared.ErrLevelNotFound
}

type memProgress struct {
	rows      map[progressKey]*puzzle.Progress
	preferred map[progressKey]shared.Difficulty
}

func newMemProgress() *memProgress {
	return &memProgress{
		rows:      map[progressKey]*puzzle.Progress{},
		preferred: map[progressKey]shared.Difficulty{},
	}
}

func (m *memProgress) Get(_ context.Context, userID shared.UserID, levelID shared.LevelID) (*puzzle.Progress, error) {
	if p, ok := m.rows[progressKey{userID, levelID}]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, shared.ErrProgressNotFound
}

func (m *memProgress) GetForUpdate(_ context.Context, userID shared.UserID, levelID shared.LevelID) (*puzzle.Progress, error) {
	key := progressKey{userID, levelID}
	if p, ok := m.rows[key]; ok {
		cp := *p
		return &cp, nil
	}
	p := puzzle.NewProgress(userID, levelID)
	m.rows[key] = p
	cp := *p
	return &cp, nil
}

func (m *memProgress) Save(_ context.Context, p *puzzle.Progress) error {
	cp := *p
	m.rows[progressKey{p.UserID, p.LevelID}] = &cp
	return nil
}

func (m *memProgress) GetPreferredDifficulty(_ context.Context, userID shared.UserID, lessonID shared.LessonID) (shared.Difficulty, error) {
	if d, ok := m.preferred[progressKey{userID, shared.LevelID(lessonID)}]; ok {
		return d, nil
	}
	return "", shared.ErrNotFound
}

func (m *memProgress) SetPreferredDifficulty(_ context.Context, userID shared.UserID, lessonID shared.LessonID, d shared.Difficulty) error {
	m.preferred[progressKey{userID, shared.LevelID(lessonID)}] = d
	return nil
}

type memAttempts struct {
	rows []*puzzle.Attempt
}

func (m *memAttempts) Insert(_ context.Context, a *puzzle.Attempt) error {
	cp := *a
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memAttempts) ExistsByIdempotencyKey(_ context.Context, userID shared.UserID, key string) (bool, error) {
	for _, a := range m.rows {
		if a.UserID == userID && a.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAttempts) RecentByLesson(_ context.Context, userID shared.UserID, lessonID shared.LessonID, limit int) ([]puzzle.Observation, int, error) {
	var obs []puzzle.Observation
	total := 0
	for i := len(m.rows) - 1; i >= 0; i-- { // newest first
		a := m.rows[i]
		if a.UserID != userID || a.LessonID != lessonID {
			continue
		}
		total++
		if len(obs) < limit {
			obs = append(obs, puzzle.Observation{
				LevelID:     a.LevelID,
				Success:     a.Success,
				Difficulty:  a.Difficulty,
				AttemptTime: a.AttemptTime,
				CreatedAt:   a.CreatedAt,
			})
		}
	}
	return obs, total, nil
}

func (m *memAttempts) SuccessTimes(_ context.Context, userID shared.UserID, levelID shared.LevelID) ([]int, error) {
	var times []int
	for _, a := range m.rows {
		if a.UserID == userID && a.LevelID == levelID && a.Success {
			times = append(times, a.AttemptTime)
		}
	}
	return times, nil
}

type memCompletions struct {
	rows map[progressKey]*puzzle.Completion
}

func newMemCompletions() *memCompletions {
	return &memCompletions{rows: map[progressKey]*puzzle.Completion{}}
}

func (m *memCompletions) Upsert(_ context.Context, c *puzzle.Completion) (bool, error) {
	key := progressKey{c.UserID, c.LevelID}
	if _, ok := m.rows[key]; ok {
		return false, nil
	}
	cp := *c
	m.rows[key] = &cp
	return true, nil
}

func (m *memCompletions) CountByUser(_ context.Context, userID shared.UserID) (int, error) {
	n := 0
	for key := range m.rows {
		if key.user == userID {
			n++
		}
	}
	return n, nil
}

type memStats struct {
	rows map[shared.UserID]*progression.Statistics
}

func newMemStats() *memStats {
	return &memStats{rows: map[shared.UserID]*progression.Statistics{}}
}

func (m *memStats) Get(_ context.Context, userID shared.UserID) (*progression.Statistics, error) {
	if s, ok := m.rows[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, shared.ErrStatsNotFound
}

func (m *memStats) GetForUpdate(ctx context.Context, userID shared.UserID) (*progression.Statistics, error) {
	return m.Get(ctx, userID)
}

func (m *memStats) GetOrCreateForUpdate(_ context.Context, userID shared.UserID) (*progression.Statistics, error) {
	if s, ok := m.rows[userID]; ok {
		cp := *s
		return &cp, nil
	}
	s := progression.NewStatistics(userID)
	m.rows[userID] = s
	cp := *s
	return &cp, nil
}

func (m *memStats) Save(_ context.Context, stats *progression.Statistics) error {
	cp := *stats
	m.rows[stats.UserID] = &cp
	return nil
}

type memAchievements struct {
	rows map[shared.UserID]map[progression.AchievementType]*progression.Achievement
}

func newMemAchievements() *memAchievements {
	return &memAchievements{rows: map[shared.UserID]map[progression.AchievementType]*progression.Achievement{}}
}

func (m *memAchievements) OwnedTypes(_ context.Context, userID shared.UserID) (map[progression.AchievementType]bool, error) {
	owned := map[progression.AchievementType]bool{}
	for t := range m.rows[userID] {
		owned[t] = true
	}
	return owned, nil
}

func (m *memAchievements) Insert(_ context.Context, a *progression.Achievement) (bool, error) {
	byUser, ok := m.rows[a.UserID]
	if !ok {
		byUser = map[progression.AchievementType]*progression.Achievement{}
		m.rows[a.UserID] = byUser
	}
	if _, exists := byUser[a.Type]; exists {
		return false, nil
	}
	cp := *a
	byUser[a.Type] = &cp
	return true, nil
}

func (m *memAchievements) ListByUser(_ context.Context, userID shared.UserID) ([]*progression.Achievement, error) {
	var out []*progression.Achievement
	for _, a := range m.rows[userID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

type memAudit struct {
	logs   []*adaptive.AdaptiveLog
	audits []*adaptive.DifficultyAudit
}

func (m *memAudit) InsertLog(_ context.Context, l *adaptive.AdaptiveLog) error {
	cp := *l
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *memAudit) InsertDifficultyAudit(_ context.Context, a *adaptive.DifficultyAudit) error {
	cp := *a
	m.audits = append(m.audits, &cp)
	return nil
}

type memSessions struct {
	rows     map[shared.UserID]*session.UserSession
	attempts int
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[shared.UserID]*session.UserSession{}}
}

func (m *memSessions) Insert(_ context.Context, s *session.UserSession) error {
	cp := *s
	m.rows[s.UserID] = &cp
	return nil
}

func (m *memSessions) ActiveByUser(_ context.Context, userID shared.UserID) (*session.UserSession, error) {
	if s, ok := m.rows[userID]; ok && s.SessionEnd == nil {
		cp := *s
		return &cp, nil
	}
	return nil, shared.ErrSessionNotFound
}

func (m *memSessions) Heartbeat(_ context.Context, userID shared.UserID, now time.Time) error {
	if s, ok := m.rows[userID]; ok {
		s.LastSeenAt = now
	}
	return nil
}

func (m *memSessions) Close(_ context.Context, userID shared.UserID, now time.Time) error {
	if s, ok := m.rows[userID]; ok && s.SessionEnd == nil {
		end := now
		s.SessionEnd = &end
		return nil
	}
	return shared.ErrNoOpenSession
}

func (m *memSessions) IncrementCounters(_ context.Context, userID shared.UserID, success bool) error {
	m.attempts++
	if s, ok := m.rows[userID]; ok {
		s.PuzzlesAttempted++
		if success {
			s.PuzzlesCompleted++
		}
	}
	return nil
}

func (m *memSessions) OnlineUsers(_ context.Context, userIDs []shared.UserID, cutoff time.Time) (map[shared.UserID]bool, error) {
	online := map[shared.UserID]bool{}
	for _, id := range userIDs {
		if s, ok := m.rows[id]; ok && s.SessionEnd == nil && !s.LastSeenAt.Before(cutoff) {
			online[id] = true
		}
	}
	return online, nil
}

func (m *memSessions) CloseStale(_ context.Context, cutoff time.Time) (int, error) {
	closed := 0
	for _, s := range m.rows {
		if s.SessionEnd == nil && s.LastSeenAt.Before(cutoff) {
			end := cutoff
			s.SessionEnd = &end
			closed++
		}
	}
	return closed, nil
}

type memMatches struct {
	rows map[shared.MatchID]*battle.Match
	// participants lets ActiveByUser and friends resolve membership.
	participants *memParticipants
}

func newMemMatches(participants *memParticipants) *memMatches {
	return &memMatches{rows: map[shared.MatchID]*battle.Match{}, participants: participants}
}

func (m *memMatches) Insert(_ context.Context, match *battle.Match) error {
	cp := *match
	m.rows[match.ID] = &cp
	return nil
}

func (m *memMatches) Get(_ context.Context, id shared.MatchID) (*battle.Match, error) {
	if match, ok := m.rows[id]; ok {
		cp := *match
		return &cp, nil
	}
	return nil, shared.ErrMatchNotFound
}

func (m *memMatches) GetForUpdate(ctx context.Context, id shared.MatchID) (*battle.Match, error) {
	return m.Get(ctx, id)
}

func (m *memMatches) Save(_ context.Context, match *battle.Match) error {
	cp := *match
	m.rows[match.ID] = &cp
	return nil
}

func (m *memMatches) byUserAndStatus(userID shared.UserID, status battle.MatchStatus) []*battle.Match {
	var out []*battle.Match
	for _, match := range m.rows {
		if match.Status != status {
			continue
		}
		for _, p := range m.participants.rows {
			if p.MatchID == match.ID && p.UserID == userID {
				cp := *match
				out = append(out, &cp)
				break
			}
		}
	}
	return out
}

func (m *memMatches) ActiveByUser(_ context.Context, userID shared.UserID) ([]*battle.Match, error) {
	return m.byUserAndStatus(userID, battle.StatusActive), nil
}

func (m *memMatches) PendingByUser(_ context.Context, userID shared.UserID) ([]*battle.Match, error) {
	return m.byUserAndStatus(userID, battle.StatusPending), nil
}

func (m *memMatches) CancelPendingForUsers(_ context.Context, userIDs []shared.UserID, keep shared.MatchID) ([]shared.MatchID, error) {
	users := map[shared.UserID]bool{}
	for _, id := range userIDs {
		users[id] = true
	}
	var cancelled []shared.MatchID
	for id, match := range m.rows {
		if id == keep || match.Status != battle.StatusPending {
			continue
		}
		for _, p := range m.participants.rows {
			if p.MatchID == id && users[p.UserID] {
				now := time.Now().UTC()
				match.Status = battle.StatusCancelled
				match.CompletedAt = &now
				cancelled = append(cancelled, id)
				break
			}
		}
	}
	return cancelled, nil
}

func (m *memMatches) StalePending(_ context.Context, cutoff time.Time) ([]*battle.Match, error) {
	var out []*battle.Match
	for _, match := range m.rows {
		if match.Status == battle.StatusPending && match.CreatedAt.Before(cutoff) {
			cp := *match
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memMatches) PendingQueueWaiters(_ context.Context, maxAge time.Duration, minSize int) ([]*battle.Match, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	var out []*battle.Match
	for _, match := range m.rows {
		if match.Status != battle.StatusPending || match.CreatedAt.Before(cutoff) {
			continue
		}
		count := 0
		for _, p := range m.participants.rows {
			if p.MatchID == match.ID {
				count++
			}
		}
		if count < minSize {
			cp := *match
			out = append(out, &cp)
		}
	}
	return out, nil
}

type participantKey struct {
	match shared.MatchID
	user  shared.UserID
}

type memParticipants struct {
	rows map[participantKey]*battle.Participant
	// order preserves join order for ListByMatch.
	order []participantKey
}

func newMemParticipants() *memParticipants {
	return &memParticipants{rows: map[participantKey]*battle.Participant{}}
}

func (m *memParticipants) Insert(_ context.Context, p *battle.Participant) error {
	key := participantKey{p.MatchID, p.UserID}
	if _, ok := m.rows[key]; ok {
		return shared.ErrAlreadyExists
	}
	cp := *p
	m.rows[key] = &cp
	m.order = append(m.order, key)
	return nil
}

func (m *memParticipants) Get(_ context.Context, matchID shared.MatchID, userID shared.UserID) (*battle.Participant, error) {
	if p, ok := m.rows[participantKey{matchID, userID}]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, shared.ErrNotParticipant
}

func (m *memParticipants) ListByMatch(_ context.Context, matchID shared.MatchID) ([]*battle.Participant, error) {
	var out []*battle.Participant
	for _, key := range m.order {
		if key.match == matchID {
			cp := *m.rows[key]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memParticipants) Save(_ context.Context, p *battle.Participant) error {
	cp := *p
	m.rows[participantKey{p.MatchID, p.UserID}] = &cp
	return nil
}

func (m *memParticipants) WinCountByUser(_ context.Context, userID shared.UserID) (int, error) {
	n := 0
	for _, p := range m.rows {
		if p.UserID == userID && p.IsWinner != nil && *p.IsWinner {
			n++
		}
	}
	return n, nil
}

type memChallenges struct {
	rows map[string]*battle.Challenge
}

func newMemChallenges() *memChallenges {
	return &memChallenges{rows: map[string]*battle.Challenge{}}
}

func (m *memChallenges) Insert(_ context.Context, c *battle.Challenge) error {
	cp := *c
	m.rows[c.ID] = &cp
	return nil
}

func (m *memChallenges) Get(_ context.Context, id string) (*battle.Challenge, error) {
	if c, ok := m.rows[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, shared.ErrChallengeNotFound
}

func (m *memChallenges) GetForUpdate(ctx context.Context, id string) (*battle.Challenge, error) {
	return m.Get(ctx, id)
}

func (m *memChallenges) Save(_ context.Context, c *battle.Challenge) error {
	cp := *c
	m.rows[c.ID] = &cp
	return nil
}

func (m *memChallenges) PendingForOpponent(_ context.Context, userID shared.UserID) ([]*battle.Challenge, error) {
	var out []*battle.Challenge
	for _, c := range m.rows {
		if c.OpponentID == userID && c.Status == battle.ChallengePending {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// testEnv bundles the in-memory repositories and a UnitOfWork over them.
type testEnv struct {
	levels       *memLevels
	progress     *memProgress
	attempts     *memAttempts
	completions  *memCompletions
	stats        *memStats
	achievements *memAchievements
	audit        *memAudit
	sessions     *memSessions
	matches      *memMatches
	participants *memParticipants
	challenges   *memChallenges
}

func newTestEnv() *testEnv {
	participants := newMemParticipants()
	return &testEnv{
		levels:       newMemLevels(),
		progress:     newMemProgress(),
		attempts:     &memAttempts{},
		completions:  newMemCompletions(),
		stats:        newMemStats(),
		achievements: newMemAchievements(),
		audit:        &memAudit{},
		sessions:     newMemSessions(),
		matches:      newMemMatches(participants),
		participants: participants,
		challenges:   newMemChallenges(),
	}
}

func (e *testEnv) repos() Repos {
	return Repos{
		Levels:       e.levels,
		Progress:     e.progress,
		Attempts:     e.attempts,
		Completions:  e.completions,
		Stats:        e.stats,
		Achievements: e.achievements,
		Audit:        e.audit,
		Sessions:     e.sessions,
		Matches:      e.matches,
		Participants: e.participants,
		Challenges:   e.challenges,
		Optional: func(ctx context.Context, _ string, fn func(context.Context) error) error {
			return fn(ctx)
		},
	}
}

// uow is a pass-through unit of work: no transaction, the fakes mutate in
// place. Good enough for single-goroutine handler tests.
func (e *testEnv) uow() UnitOfWork {
	return uowFunc(func(ctx context.Context, fn func(context.Context, Repos) error) error {
		return fn(ctx, e.repos())
	})
}

type uowFunc func(ctx context.Context, fn func(context.Context, Repos) error) error

func (f uowFunc) Run(ctx context.Context, fn func(context.Context, Repos) error) error {
	return f(ctx, fn)
}

// fakeKernel serves a canned evaluation; nil result falls back to defaults.
type fakeKernel struct {
	result  *adaptive.EvaluateResult
	cluster *adaptive.ClusterResult
	err     error
	calls   int
}

func (k *fakeKernel) Evaluate(_ context.Context, req adaptive.EvaluateRequest) (*adaptive.EvaluateResult, error) {
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	if k.result != nil {
		return k.result, nil
	}
	return adaptive.DefaultEvaluateResult(req, shared.DifficultyFromBeta(req.BetaOld.Clamp())), nil
}

func (k *fakeKernel) ClusterPlayers(_ context.Context, _ adaptive.ClusterRequest) (*adaptive.ClusterResult, error) {
	if k.err != nil {
		return nil, k.err
	}
	if k.cluster != nil {
		return k.cluster, nil
	}
	return nil, shared.ErrKernelUnavailable
}

// eventRecorder collects published events.
type eventRecorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *eventRecorder) Publish(ev shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) Types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType())
	}
	return out
}

// emitRecord is one captured notification.
type emitRecord struct {
	Room  string
	Event string
}

// captureNotifier records room emits in order.
type captureNotifier struct {
	mu    sync.Mutex
	emits []emitRecord
}

func (n *captureNotifier) Emit(room, event string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emits = append(n.emits, emitRecord{Room: room, Event: event})
}

// memSummaries is a SummaryAccess serving one canned window and recording
// primes.
type memSummaries struct {
	summary *puzzle.LessonSummary
	primed  []puzzle.Observation
}

func (m *memSummaries) GetLessonSummary(_ context.Context, userID shared.UserID, lessonID shared.LessonID) (*puzzle.LessonSummary, error) {
	if m.summary != nil {
		return m.summary, nil
	}
	return puzzle.NewLessonSummary(userID, lessonID, nil, 0), nil
}

func (m *memSummaries) Prime(_ shared.UserID, _ shared.LessonID, obs puzzle.Observation) {
	m.primed = append(m.primed, obs)
}
