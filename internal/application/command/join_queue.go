package command

import (
	"context"
	"fmt"
	"time"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/matchmaking"
	"github.com/codearena/arena-server/internal/domain/progression"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/internal/domain/user"
	"github.com/codearena/arena-server/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOIN QUEUE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// Queue entry sources. A socket join waits in the in-memory queue; an HTTP
// join creates a solo-pending match the queue later fuses in as a waiter.
const (
	QueueSourceSocket = "socket"
	QueueSourceHTTP   = "http"
)

// TicketQueue is the in-memory matchmaking actor as the command layer sees it.
type TicketQueue interface {
	Enqueue(ctx context.Context, t matchmaking.Ticket) error
	Dequeue(ctx context.Context, userID shared.UserID) bool
}

// SkillReader loads a user's aggregate ability estimate for clustering.
type SkillReader interface {
	AverageSkill(ctx context.Context, userID shared.UserID) (shared.Theta, shared.Beta, error)
}

// JoinQueueCommand enters a user into ranked matchmaking.
type JoinQueueCommand struct {
	UserID    string
	Language  string
	MatchSize int
	Source    string // QueueSourceSocket or QueueSourceHTTP
}

// Validate checks the command's input invariants.
func (c *JoinQueueCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.Language == "" {
		return shared.NewDomainError("command", "JoinQueue", shared.ErrEmptyValue, "language is required")
	}
	if c.Source != QueueSourceSocket && c.Source != QueueSourceHTTP {
		return shared.NewDomainError("command", "JoinQueue", shared.ErrInvalidInput, "unknown queue source")
	}
	return nil
}

// JoinQueueResult reports where the join landed.
type JoinQueueResult struct {
	Queued  bool           `json:"queued"`
	MatchID shared.MatchID `json:"match_id,omitempty"` // set for HTTP joins
}

// JoinQueueHandler handles JoinQueueCommand.
type JoinQueueHandler struct {
	uow    UnitOfWork
	queue  TicketQueue
	stats  progression.StatsRepository
	users  user.Repository
	skills SkillReader
	events shared.EventPublisher
	log    *logger.Logger
}

// NewJoinQueueHandler creates the queue entry handler.
func NewJoinQueueHandler(
	uow UnitOfWork,
	queue TicketQueue,
	stats progression.StatsRepository,
	users user.Repository,
	skills SkillReader,
	events shared.EventPublisher,
	log *logger.Logger,
) *JoinQueueHandler {
	if log == nil {
		log = logger.Default()
	}
	return &JoinQueueHandler{
		uow:    uow,
		queue:  queue,
		stats:  stats,
		users:  users,
		skills: skills,
		events: events,
		log:    log.With(logger.Component("join_queue")),
	}
}

// Handle routes the join by source. Both paths enforce the exp floor; only
// the HTTP path debits the entry fee now, because it enrolls immediately.
func (h *JoinQueueHandler) Handle(ctx context.Context, cmd JoinQueueCommand) (*JoinQueueResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	cmd.MatchSize = matchmaking.ClampMatchSize(cmd.MatchSize)

	if cmd.Source == QueueSourceHTTP {
		return h.handleHTTP(ctx, cmd)
	}
	return h.handleSocket(ctx, cmd)
}

// handleSocket puts a ticket into the in-memory queue. The entry fee is
// debited later, when a match actually forms.
func (h *JoinQueueHandler) handleSocket(ctx context.Context, cmd JoinQueueCommand) (*JoinQueueResult, error) {
	userID := shared.UserID(cmd.UserID)

	stats, err := h.stats.Get(ctx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrQueueExpRequired
		}
		return nil, fmt.Errorf("failed to load statistics: %w", err)
	}
	if stats.Exp < matchmaking.MinQueueExp {
		return nil, shared.ErrQueueExpRequired
	}

	ticket := matchmaking.Ticket{
		UserID:      userID,
		DisplayName: h.displayName(ctx, userID),
		MatchType:   battle.TypeRanked,
		Language:    cmd.Language,
		MatchSize:   cmd.MatchSize,
		RankName:    stats.RankName,
		Theta:       shared.DefaultTheta,
		Beta:        shared.DefaultBeta,
		EnqueuedAt:  time.Now().UTC(),
	}
	if h.skills != nil {
		if theta, beta, err := h.skills.AverageSkill(ctx, userID); err == nil {
			ticket.Theta, ticket.Beta = theta, beta
		}
	}

	if err := h.queue.Enqueue(ctx, ticket); err != nil {
		return nil, err
	}
	h.publishJoined(cmd)
	return &JoinQueueResult{Queued: true}, nil
}

// handleHTTP creates a solo-pending match, debiting the entry fee up front.
// The matchmaking pass fuses it in as a waiter until the ready window expires.
func (h *JoinQueueHandler) handleHTTP(ctx context.Context, cmd JoinQueueCommand) (*JoinQueueResult, error) {
	userID := shared.UserID(cmd.UserID)
	res := &JoinQueueResult{}

	err := h.uow.Run(ctx, func(ctx context.Context, r Repos) error {
		pending, err := r.Matches.PendingByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list pending matches: %w", err)
		}
		if len(pending) > 0 {
			return shared.ErrQueueEntryExists
		}

		stats, err := r.Stats.GetOrCreateForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to lock statistics: %w", err)
		}
		if err := stats.DebitExp(battle.QueueEntryExp); err != nil {
			return shared.ErrQueueExpRequired
		}
		if err := r.Stats.Save(ctx, stats); err != nil {
			return fmt.Errorf("failed to save statistics: %w", err)
		}

		match := battle.NewMatch(battle.TypeRanked, cmd.Language, "")
		if err := r.Matches.Insert(ctx, match); err != nil {
			return fmt.Errorf("failed to insert match: %w", err)
		}

		p := battle.NewParticipant(match.ID, userID)
		p.RankAtJoin = stats.RankName
		p.SuccessCount = stats.TotalSuccessCount
		p.FailCount = stats.TotalFailCount
		if err := r.Participants.Insert(ctx, p); err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}

		res.MatchID = match.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Queued = true
	h.publishJoined(cmd)
	h.log.Info("solo pending match created",
		logger.UserID(cmd.UserID), logger.MatchID(res.MatchID.String()))
	return res, nil
}

func (h *JoinQueueHandler) displayName(ctx context.Context, userID shared.UserID) string {
	if h.users == nil {
		return ""
	}
	names, err := h.users.DisplayNames(ctx, []shared.UserID{userID})
	if err != nil {
		return ""
	}
	return names[userID]
}

func (h *JoinQueueHandler) publishJoined(cmd JoinQueueCommand) {
	if err := h.events.Publish(shared.NewQueueJoinedEvent(cmd.UserID, string(battle.TypeRanked), cmd.Language, cmd.MatchSize, cmd.Source)); err != nil {
		h.log.Warn("event publish failed", logger.Err(err))
	}
}
