package matchmaking

import (
	"fmt"
	"math"
	"time"

	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// Skill-space normalization constants. Theta spans [-3, 3] and beta spans
// [0.1, 1.0]; both axes are scaled to [0, 1] before distances are taken.
const (
	thetaSpan = 6.0
	betaSpan  = 0.9
)

// Selection is an accepted sub-group with its compatibility score.
type Selection struct {
	UserIDs    []shared.UserID
	MatchScore float64
	ClusterID  string
}

// Compatibility scores a pair of players in [0, 1]: 1 is identical skill,
// 0 is opposite corners of the (theta, beta) space.
func Compatibility(a, b Ticket) float64 {
	dt := math.Abs(float64(a.Theta)-float64(b.Theta)) / thetaSpan
	db := math.Abs(float64(a.Beta)-float64(b.Beta)) / betaSpan
	return 1 - (dt+db)/2
}

// GroupScore is the mean pairwise compatibility of a group.
func GroupScore(group []Ticket) float64 {
	if len(group) < 2 {
		return 0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			sum += Compatibility(group[i], group[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// SelectGroup is the in-process fallback for the kernel's clustering call.
// Candidate pools are at most five players, so instead of k-means the
// fallback enumerates every sub-group of the requested size and keeps the
// highest-scoring one. Returns false when no sub-group reaches minScore.
func SelectGroup(candidates []Ticket, groupSize int, minScore float64) (*Selection, bool) {
	if groupSize < 2 || len(candidates) < groupSize {
		return nil, false
	}

	var best []Ticket
	bestScore := -1.0
	combinations(len(candidates), groupSize, func(idx []int) {
		group := make([]Ticket, 0, groupSize)
		for _, i := range idx {
			group = append(group, candidates[i])
		}
		if score := GroupScore(group); score > bestScore {
			bestScore = score
			best = group
		}
	})

	if best == nil || bestScore < minScore {
		return nil, false
	}
	ids := make([]shared.UserID, 0, len(best))
	for _, t := range best {
		ids = append(ids, t.UserID)
	}
	return &Selection{
		UserIDs:    ids,
		MatchScore: bestScore,
		ClusterID:  fmt.Sprintf("local-%d", time.Now().UnixMilli()),
	}, true
}

// combinations visits every k-subset of [0, n) in lexicographic order.
func combinations(n, k int, visit func(idx []int)) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		visit(idx)
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// ToClusterRequest shapes a candidate pool for the remote kernel matcher.
func ToClusterRequest(candidates []Ticket, groupSize int, minScore float64) adaptive.ClusterRequest {
	players := make([]adaptive.ClusterPlayer, 0, len(candidates))
	for _, t := range candidates {
		players = append(players, adaptive.ClusterPlayer{
			UserID: t.UserID,
			Theta:  t.Theta,
			Beta:   t.Beta,
		})
	}
	return adaptive.ClusterRequest{Players: players, GroupSize: groupSize, MinMatchScore: minScore}
}
