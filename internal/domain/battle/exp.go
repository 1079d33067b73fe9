package battle

// Win/loss exp constants for ranked matches. Challenge stakes come from the
// wager instead.
const (
	rankedWinBase        = 200
	rankedWinPerOpponent = 50
	rankedLossExp        = 50
)

// WinExp returns the exp credited to the winner.
// Ranked: 200 + 50 per defeated opponent. Challenge: twice the wager.
func WinExp(matchType MatchType, participantCount, wager int) int {
	switch matchType {
	case TypeChallenge:
		if wager <= 0 {
			wager = DefaultWager
		}
		return 2 * wager
	default:
		opponents := participantCount - 1
		if opponents < 0 {
			opponents = 0
		}
		return rankedWinBase + rankedWinPerOpponent*opponents
	}
}

// LossExp returns the exp debited from each loser.
// Ranked: flat 50. Challenge: the wager.
func LossExp(matchType MatchType, wager int) int {
	switch matchType {
	case TypeChallenge:
		if wager <= 0 {
			wager = DefaultWager
		}
		return wager
	default:
		return rankedLossExp
	}
}
