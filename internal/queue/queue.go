// Package queue ranks a firm's unclaimed orders in FIFO order.
//
// Every function here is pure: callers hand in a snapshot of queued,
// unclaimed orders read from the store and get ranks back.
package queue

import (
	"sort"

	"water-service/internal/models"
)

// Position returns the 1-based rank of target among the snapshot: one plus
// the number of other entries created strictly earlier. Entries created at
// the same instant share a rank.
func Position(target models.QueueEntry, snapshot []models.QueueEntry) int {
	pos := 1
	for _, e := range snapshot {
		if e.OrderID == target.OrderID {
			continue
		}
		if e.CreatedAt.Before(target.CreatedAt) {
			pos++
		}
	}
	return pos
}

// Ranked is a queue entry with its position
type Ranked struct {
	models.QueueEntry
	Position int `json:"position"`
}

// Rank orders the snapshot by creation time and assigns each entry its
// Position. The input slice is not modified.
func Rank(snapshot []models.QueueEntry) []Ranked {
	sorted := make([]models.QueueEntry, len(snapshot))
	copy(sorted, snapshot)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].OrderID < sorted[j].OrderID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	ranked := make([]Ranked, len(sorted))
	for i, e := range sorted {
		pos := i + 1
		if i > 0 && e.CreatedAt.Equal(sorted[i-1].CreatedAt) {
			pos = ranked[i-1].Position
		}
		ranked[i] = Ranked{QueueEntry: e, Position: pos}
	}
	return ranked
}
