package nodes

import (
	"errors"
	"math/rand"
)

// CandidateTolerance is how far behind the most advanced node a candidate may be.
const CandidateTolerance = 50

// ErrNoCandidate is returned when no Bob node is close enough to the head of the
// network to serve as a tick-log source.
var ErrNoCandidate = errors.New("no candidate node available")

// Candidates returns the nodes with a positive CurrentFetchingTick within
// CandidateTolerance of the maximum observed, in input order.
func Candidates(bobs []BobStatus) []BobStatus {
	var maxTick uint64
	for _, b := range bobs {
		if b.CurrentFetchingTick > maxTick {
			maxTick = b.CurrentFetchingTick
		}
	}
	if maxTick == 0 {
		return nil
	}

	var floor uint64
	if maxTick > CandidateTolerance {
		floor = maxTick - CandidateTolerance
	}
	var eligible []BobStatus
	for _, b := range bobs {
		if b.CurrentFetchingTick > 0 && b.CurrentFetchingTick >= floor {
			eligible = append(eligible, b)
		}
	}
	return eligible
}

// SelectCandidate picks a relay uniformly at random among Candidates. A nil rng
// uses the global source.
func SelectCandidate(bobs []BobStatus, rng *rand.Rand) (BobStatus, error) {
	eligible := Candidates(bobs)
	if len(eligible) == 0 {
		return BobStatus{}, ErrNoCandidate
	}

	var idx int
	if rng != nil {
		idx = rng.Intn(len(eligible))
	} else {
		idx = rand.Intn(len(eligible))
	}
	return eligible[idx], nil
}
