// Package leaderboard models the cached ranking snapshots: four board types,
// each fully rebuilt on refresh.
package leaderboard

import (
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// BoardType selects the ranking dimension.
type BoardType string

const (
	// BoardOverall ranks by total exp.
	BoardOverall BoardType = "overall"

	// BoardMultiplayer ranks by battle wins.
	BoardMultiplayer BoardType = "multiplayer"

	// BoardAchievements ranks by completed achievement count.
	BoardAchievements BoardType = "achievements"

	// BoardStreaks ranks by longest streak.
	BoardStreaks BoardType = "streaks"
)

// BoardTypes lists every board in refresh order.
func BoardTypes() []BoardType {
	return []BoardType{BoardOverall, BoardMultiplayer, BoardAchievements, BoardStreaks}
}

// IsValid reports whether the board type is known.
func (b BoardType) IsValid() bool {
	switch b {
	case BoardOverall, BoardMultiplayer, BoardAchievements, BoardStreaks:
		return true
	}
	return false
}

const (
	// DefaultTTL is how long a snapshot stays fresh.
	DefaultTTL = 5 * time.Minute

	// DefaultLimit is the snapshot depth per board.
	DefaultLimit = 200
)

// Entry is one cached row. Position is dense-sequential from 1. Score is the
// board-specific metric (exp, wins, achievements, longest streak).
type Entry struct {
	BoardType   BoardType
	Position    int
	UserID      shared.UserID
	DisplayName string
	RankName    string
	Exp         int
	Score       int
	SnapshotAt  time.Time
}

// Standing is a user's position on one board, resolved from the snapshot or,
// past the snapshot depth, from a live count.
type Standing struct {
	BoardType BoardType
	Position  int
	Score     int
	Cached    bool
}
