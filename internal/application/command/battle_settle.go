package command

import (
	"context"
	"fmt"
	"sort"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// settleOutcome decides an active match: the winner is credited, every other
// undecided participant is debited, and all rows are written back. A
// participant whose outcome is already decided (an earlier forfeit) keeps
// their recorded loss and is not debited again. Ledger rows lock in user-id
// order so overlapping settlements cannot deadlock. Returns the exp and rank
// events to publish after commit.
func settleOutcome(ctx context.Context, r Repos, match *battle.Match, participants []*battle.Participant, winnerID shared.UserID, completionTime int) ([]shared.Event, error) {
	ordered := make([]*battle.Participant, len(participants))
	copy(ordered, participants)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].UserID < ordered[j].UserID })

	winExp := battle.WinExp(match.MatchType, len(participants), match.Wager)
	lossExp := battle.LossExp(match.MatchType, match.Wager)

	var events []shared.Event
	for _, p := range ordered {
		if p.Decided() {
			continue
		}
		stats, err := r.Stats.GetOrCreateForUpdate(ctx, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to lock statistics: %w", err)
		}
		oldRank := stats.Rank()

		var delta int
		if p.UserID == winnerID {
			p.MarkWinner(winExp)
			p.CompletionTime = completionTime
			delta = winExp
		} else {
			p.MarkLoser(lossExp)
			delta = -lossExp
		}
		rankChanged := stats.AddExp(delta)

		if err := r.Stats.Save(ctx, stats); err != nil {
			return nil, fmt.Errorf("failed to save statistics: %w", err)
		}
		if err := r.Participants.Save(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to save participant: %w", err)
		}

		events = append(events, shared.NewExpChangedEvent(p.UserID.String(), delta, stats.Exp, "battle"))
		if rankChanged {
			newRank := stats.Rank()
			events = append(events, shared.NewRankChangedEvent(p.UserID.String(), oldRank.Name, newRank.Name, oldRank.Index, newRank.Index, stats.Exp))
		}
	}
	return events, nil
}

// splitByOutcome partitions settled participants into winner and loser id
// lists for the completion event.
func splitByOutcome(participants []*battle.Participant) (winners, losers []string) {
	for _, p := range participants {
		if p.IsWinner != nil && *p.IsWinner {
			winners = append(winners, p.UserID.String())
		} else {
			losers = append(losers, p.UserID.String())
		}
	}
	return winners, losers
}
