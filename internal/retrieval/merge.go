package retrieval

import "sort"

// MergeStrategy combines per-store result lists into a single ranking.
// The outer slice preserves store configuration order; inner slices are
// already ranked by their store.
//
// The strategy is a named, overridable policy: callers that need a
// different cross-store ranking (e.g. reciprocal rank fusion) supply
// their own function.
type MergeStrategy func(perStore [][]Passage) []Passage

// MergeByScore is the default strategy: concatenate per-store lists, then
// stable-sort by score descending. Unscored passages rank after any scored
// passage, keeping store-iteration order among themselves.
func MergeByScore(perStore [][]Passage) []Passage {
	var merged []Passage
	for _, passages := range perStore {
		merged = append(merged, passages...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		switch {
		case a.Scored() && !b.Scored():
			return true
		case !a.Scored() && b.Scored():
			return false
		case !a.Scored() && !b.Scored():
			return false // stable sort keeps store order
		default:
			return a.ScoreValue() > b.ScoreValue()
		}
	})

	return merged
}
