package game

import (
	"sort"
	"time"
)

// Standing is the slice of player state the ranking rule needs.
type Standing struct {
	UserID         string
	Points         int
	FirstCorrectAt time.Time // zero if the player has no correct answer yet
}

// Rank orders standings by points descending. Ties break on the earlier
// first-correct-answer time; a player with no correct answer sorts after
// one who has any. A final tie-break on UserID keeps the ordering
// deterministic so recomputing on the same scores never reshuffles ranks.
// The returned map is UserID -> 1-based rank.
func Rank(standings []Standing) map[string]int {
	ordered := make([]Standing, len(standings))
	copy(ordered, standings)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		switch {
		case a.FirstCorrectAt.IsZero() && b.FirstCorrectAt.IsZero():
			return a.UserID < b.UserID
		case a.FirstCorrectAt.IsZero():
			return false
		case b.FirstCorrectAt.IsZero():
			return true
		case !a.FirstCorrectAt.Equal(b.FirstCorrectAt):
			return a.FirstCorrectAt.Before(b.FirstCorrectAt)
		}
		return a.UserID < b.UserID
	})

	ranks := make(map[string]int, len(ordered))
	for i, s := range ordered {
		ranks[s.UserID] = i + 1
	}
	return ranks
}
