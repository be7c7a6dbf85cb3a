// Package scoring holds the contest policies: speed-weighted points, rankings
// and the survey raffle draw. Everything here is pure and store-agnostic.
package scoring

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"live-survey-service/internal/domain"
)

const (
	// DefaultTimeLimit applies when a question carries no usable time limit.
	DefaultTimeLimit = 30 * time.Second
	// DefaultPoints applies when a question carries no usable base score.
	DefaultPoints = 100
	// MinMultiplier is the floor for a correct answer, however late.
	MinMultiplier = 0.1
)

// Points scores one contest answer. A wrong answer earns 0; a correct one earns
// basePoints scaled by the share of the time limit left, floored at 10%.
// Negative elapsed time (clock skew) counts as an instant answer.
func Points(correct []int, chosen int, startedAt, answeredAt time.Time, timeLimitSeconds float64, basePoints int) int {
	if !contains(correct, chosen) {
		return 0
	}
	if basePoints <= 0 {
		basePoints = DefaultPoints
	}
	limitMs := timeLimitSeconds * 1000
	if limitMs <= 0 {
		limitMs = float64(DefaultTimeLimit.Milliseconds())
	}
	takenMs := float64(answeredAt.Sub(startedAt).Milliseconds())
	if takenMs < 0 {
		takenMs = 0
	}
	multiplier := math.Max(MinMultiplier, (limitMs-takenMs)/limitMs)
	return int(math.Round(float64(basePoints) * multiplier))
}

// IsCorrect reports whether chosen is one of the correct option indices.
func IsCorrect(correct []int, chosen int) bool {
	return contains(correct, chosen)
}

func contains(set []int, v int) bool {
	for _, c := range set {
		if c == v {
			return true
		}
	}
	return false
}

// Rank orders scores descending and assigns positions 1..n. Equal scores are
// ordered by ascending user key and still get distinct positions.
func Rank(scores map[string]int) []domain.RankingEntry {
	entries := make([]domain.RankingEntry, 0, len(scores))
	for userID, score := range scores {
		entries = append(entries, domain.RankingEntry{UserID: userID, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Position = i + 1
	}
	return entries
}

// Podium returns at most n leading entries.
func Podium(rankings []domain.RankingEntry, n int) []domain.RankingEntry {
	if n > len(rankings) {
		n = len(rankings)
	}
	return rankings[:n]
}

var medals = map[int]string{
	1: "🥇 ¡Felicidades! Has obtenido el primer lugar del concurso.",
	2: "🥈 ¡Felicidades! Has obtenido el segundo lugar del concurso.",
	3: "🥉 ¡Felicidades! Has obtenido el tercer lugar del concurso.",
}

// PodiumSize is how many finishers get a notification.
const PodiumSize = 3

// MedalMessage returns the fixed message for a podium position.
func MedalMessage(position int) (string, bool) {
	msg, ok := medals[position]
	return msg, ok
}

// SelectWinner draws one voter uniformly. intn nil uses math/rand.
func SelectWinner(voters []string, intn func(n int) int) (string, error) {
	if len(voters) == 0 {
		return "", domain.ErrEmptyPool
	}
	if intn == nil {
		intn = rand.Intn
	}
	return voters[intn(len(voters))], nil
}
