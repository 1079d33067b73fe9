package command

import (
	"context"
	"fmt"
	"sort"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/matchmaking"
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/internal/infrastructure/matchqueue"
	"github.com/codearena/arena-server/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH FORMER
// ══════════════════════════════════════════════════════════════════════════════

// MatchFormer turns an accepted matchmaking group into a persisted pending
// match: entry fees, participants with snapshots, and cancellation of every
// superseded solo-pending match, all in one transaction. Implements
// matchqueue.Former.
type MatchFormer struct {
	uow      UnitOfWork
	notifier notification.Notifier
	events   shared.EventPublisher
	log      *logger.Logger
}

// NewMatchFormer creates the former.
func NewMatchFormer(uow UnitOfWork, notifier notification.Notifier, events shared.EventPublisher, log *logger.Logger) *MatchFormer {
	if log == nil {
		log = logger.Default()
	}
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &MatchFormer{
		uow:      uow,
		notifier: notifier,
		events:   events,
		log:      log.With(logger.Component("match_former")),
	}
}

// FormMatch persists the group as a pending match. Socket-joined players pay
// the entry fee here; fused waiters already paid when their solo match was
// created. A player who can no longer afford the fee is reported in Dropped
// and the whole formation rolls back for the next pass.
func (f *MatchFormer) FormMatch(ctx context.Context, group []matchmaking.Ticket, sel *matchmaking.Selection, phase int) (*matchqueue.FormResult, error) {
	if len(group) < battle.MinMatchSize {
		return nil, shared.ErrNotEnoughPlayers
	}

	// Stats rows lock in user-id order so concurrent settlements on
	// overlapping groups cannot deadlock.
	ordered := make([]matchmaking.Ticket, len(group))
	copy(ordered, group)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].UserID < ordered[j].UserID })

	result := &matchqueue.FormResult{}
	var match *battle.Match

	err := f.uow.Run(ctx, func(ctx context.Context, r Repos) error {
		match = battle.NewMatch(battle.TypeRanked, group[0].Language, "")
		match.ClusterID = sel.ClusterID
		match.MatchScore = sel.MatchScore
		if err := r.Matches.Insert(ctx, match); err != nil {
			return fmt.Errorf("failed to insert match: %w", err)
		}

		for _, t := range ordered {
			stats, err := r.Stats.GetOrCreateForUpdate(ctx, t.UserID)
			if err != nil {
				return fmt.Errorf("failed to lock statistics: %w", err)
			}
			if t.PendingMatchID.IsEmpty() {
				if err := stats.DebitExp(battle.QueueEntryExp); err != nil {
					result.Dropped = append(result.Dropped, t.UserID)
					return fmt.Errorf("entry fee debit for %s: %w", t.UserID, err)
				}
				if err := r.Stats.Save(ctx, stats); err != nil {
					return fmt.Errorf("failed to save statistics: %w", err)
				}
			}

			p := battle.NewParticipant(match.ID, t.UserID)
			p.RankAtJoin = t.RankName
			p.ThetaAtJoin = t.Theta
			p.BetaAtJoin = t.Beta
			p.SuccessCount = stats.TotalSuccessCount
			p.FailCount = stats.TotalFailCount
			if err := r.Participants.Insert(ctx, p); err != nil {
				return fmt.Errorf("failed to insert participant: %w", err)
			}
		}

		ids := make([]shared.UserID, 0, len(group))
		for _, t := range group {
			ids = append(ids, t.UserID)
		}
		if _, err := r.Matches.CancelPendingForUsers(ctx, ids, match.ID); err != nil {
			return fmt.Errorf("failed to cancel superseded matches: %w", err)
		}

		result.MatchID = match.ID
		return nil
	})
	if err != nil {
		return result, err
	}

	f.announce(match, group, sel)
	f.publishFormed(match, group, sel, phase)
	return result, nil
}

// announce delivers match_found to every participant. Fused waiters also get
// it on their old forming room, which their socket may still be joined to.
func (f *MatchFormer) announce(match *battle.Match, group []matchmaking.Ticket, sel *matchmaking.Selection) {
	participants := make([]map[string]any, 0, len(group))
	for _, t := range group {
		participants = append(participants, map[string]any{
			"user_id":      t.UserID.String(),
			"display_name": t.DisplayName,
			"rank_name":    t.RankName,
		})
	}
	payload := notification.Stamp(map[string]any{
		"match_id":     match.ID.String(),
		"match_type":   string(match.MatchType),
		"language":     match.Language,
		"match_score":  sel.MatchScore,
		"participants": participants,
	})
	for _, t := range group {
		f.notifier.Emit(notification.UserRoom(t.UserID), notification.EventMatchFound, payload)
		if !t.PendingMatchID.IsEmpty() {
			f.notifier.Emit(notification.MatchmakingRoom(t.PendingMatchID), notification.EventMatchFound, payload)
		}
	}
}

func (f *MatchFormer) publishFormed(match *battle.Match, group []matchmaking.Ticket, sel *matchmaking.Selection, phase int) {
	ids := make([]string, 0, len(group))
	for _, t := range group {
		ids = append(ids, t.UserID.String())
	}
	if err := f.events.Publish(shared.NewMatchFormedEvent(match.ID.String(), ids, string(match.MatchType), sel.MatchScore, sel.ClusterID, phase)); err != nil {
		f.log.Warn("event publish failed", logger.Err(err))
	}
}
