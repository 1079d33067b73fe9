// Package command contains write operations (CQRS - Commands). Every handler
// follows the same shape: a Command struct with Validate, a Result struct,
// and a Handler whose Handle runs the operation inside one transaction.
package command

import (
	"context"

	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/progression"
	"github.com/codearena/arena-server/internal/domain/puzzle"
	"github.com/codearena/arena-server/internal/domain/session"
)

// Repos bundles the transaction-bound repositories a write operation sees
// inside UnitOfWork.Run. Every repository participates in the same
// transaction; a returned error rolls back all of them.
type Repos struct {
	Levels       puzzle.LevelRepository
	Progress     puzzle.ProgressRepository
	Attempts     puzzle.AttemptRepository
	Completions  puzzle.CompletionRepository
	Stats        progression.StatsRepository
	Achievements progression.AchievementRepository
	Audit        adaptive.AuditRepository
	Sessions     session.Repository
	Matches      battle.MatchRepository
	Participants battle.ParticipantRepository
	Challenges   battle.ChallengeRepository

	// Optional runs fn under a savepoint: an error rolls back fn's writes
	// only, never the surrounding transaction. Used for audit rows and
	// session counters.
	Optional func(ctx context.Context, name string, fn func(context.Context) error) error
}

// UnitOfWork opens one transaction, hands transaction-bound repositories to
// fn, and commits iff fn returns nil.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}
