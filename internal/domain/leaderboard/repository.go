package leaderboard

import (
	"context"
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// Repository persists board snapshots. ReplaceBoard must run the delete and
// the reinsert inside one transaction so readers never observe a half-built
// board.
type Repository interface {
	// ReplaceBoard atomically swaps the full snapshot of one board.
	ReplaceBoard(ctx context.Context, boardType BoardType, entries []Entry) error

	// Top returns the first limit entries of a board, position order.
	Top(ctx context.Context, boardType BoardType, limit int) ([]Entry, error)

	// PositionOf looks a user up in the snapshot, or shared.ErrNotFound when
	// the user is outside the cached depth.
	PositionOf(ctx context.Context, boardType BoardType, userID shared.UserID) (*Entry, error)

	// SnapshotAge returns the age of the newest entry and the row count;
	// zero rows means the board has never been built.
	SnapshotAge(ctx context.Context, boardType BoardType) (age time.Duration, count int, err error)

	// BuildBoard computes a fresh ranking from the live ledger tables,
	// position-assigned from 1, at most limit rows.
	BuildBoard(ctx context.Context, boardType BoardType, limit int) ([]Entry, error)

	// LiveStanding computes a user's position with a count query, for users
	// beyond the snapshot depth.
	LiveStanding(ctx context.Context, boardType BoardType, userID shared.UserID) (*Standing, error)
}
