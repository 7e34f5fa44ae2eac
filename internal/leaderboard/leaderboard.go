// Package leaderboard orders players by their season score.
package leaderboard

import (
	"sort"
	"time"

	"github.com/coko7/advent-of-time/internal/model"
)

// Scorer computes a user's total season score.
type Scorer interface {
	Total(u *model.User) int
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(u *model.User) int

func (f ScorerFunc) Total(u *model.User) int { return f(u) }

// Entry is one ranked row. Rank is the 1-based position in the output and is
// never stored.
type Entry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"-"`
	DisplayName string `json:"username"`
	Guesses     int    `json:"guesses"`
	Score       int    `json:"score"`
	Accuracy    int    `json:"accuracy"`

	reachedAt time.Time
}

// Rank filters out hidden users and users without guesses, then orders the
// rest by score (descending).
//
// Ties go to whoever reached their score first (the earlier last guess), then
// to display name and user ID so the output is fully deterministic.
func Rank(users []*model.User, scorer Scorer) []Entry {
	entries := make([]Entry, 0, len(users))
	for _, u := range users {
		if u == nil || u.Hidden || len(u.Guesses) == 0 {
			continue
		}
		score := scorer.Total(u)
		entries = append(entries, Entry{
			UserID:      u.ID,
			DisplayName: u.DisplayName,
			Guesses:     len(u.Guesses),
			Score:       score,
			Accuracy:    score / len(u.Guesses),
			reachedAt:   u.LastGuessAt(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.reachedAt.Equal(b.reachedAt) {
			return a.reachedAt.Before(b.reachedAt)
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.UserID < b.UserID
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Position returns the entry for userID, if that user is ranked.
func Position(entries []Entry, userID string) (Entry, bool) {
	for _, e := range entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return Entry{}, false
}
