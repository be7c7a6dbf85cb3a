package app

import (
	"context"
	"fmt"

	"live-survey-service/internal/domain"
	"live-survey-service/internal/keypath"
)

// Store is the hierarchical key-path database the services run against
// (in-memory, Redis, Postgres). Values are JSON-shaped trees; reading a missing
// path yields nil rather than an error.
type Store interface {
	Read(ctx context.Context, path string) (any, error)
	// Write replaces the subtree at path. A nil value deletes it.
	Write(ctx context.Context, path string, value any) error
	// Update replaces each listed child of path; nil children are deleted.
	Update(ctx context.Context, path string, partial map[string]any) error
	Delete(ctx context.Context, path string) error
	// Increment atomically adds delta to the integer at path and returns the result.
	Increment(ctx context.Context, path string, delta int64) (int64, error)
	// Create writes value only if nothing exists at path yet.
	Create(ctx context.Context, path string, value any) (bool, error)
	// Subscribe streams snapshots of path, starting with the current one.
	// The caller must invoke the returned cancel function (or end ctx) to avoid leaks.
	Subscribe(ctx context.Context, path string) (<-chan any, func(), error)
}

const (
	rootSurveys        = "surveys"
	rootContests       = "contests"
	rootCodes          = "codes"
	rootWinners        = "winners"
	rootContestWinners = "contestWinners"
	rootAdmins         = "admins"
)

func surveyPath(id string) string              { return keypath.Join(rootSurveys, id) }
func questionsPath(id string) string           { return keypath.Join(surveyPath(id), "questions") }
func questionPath(id, qid string) string       { return keypath.Join(questionsPath(id), qid) }
func votesPath(id, qid string) string          { return keypath.Join(questionPath(id, qid), "votes") }
func votePath(id, qid, uid string) string      { return keypath.Join(votesPath(id, qid), uid) }
func responsesPath(id, qid string) string      { return keypath.Join(questionPath(id, qid), "responses") }
func responsePath(id, qid, uid string) string  { return keypath.Join(responsesPath(id, qid), uid) }
func winnerPath(id, qid string) string         { return keypath.Join(questionPath(id, qid), "winner") }
func contestPath(id string) string             { return keypath.Join(rootContests, id) }
func scoresPath(id string) string              { return keypath.Join(contestPath(id), "scores") }
func scorePath(id, uid string) string          { return keypath.Join(scoresPath(id), uid) }
func rankingsPath(id string) string            { return keypath.Join(contestPath(id), "finalRankings") }
func codePath(code string) string              { return keypath.Join(rootCodes, code) }
func winnerNotificationPath(uid string) string { return keypath.Join(rootWinners, uid) }
func contestWinnerPath(uid string) string      { return keypath.Join(rootContestWinners, uid) }
func adminPath(key string) string              { return keypath.Join(rootAdmins, key) }

// checkIDs rejects entity and question ids that are not a single path
// segment, so an id can never address another part of the tree.
func checkIDs(ids ...string) error {
	for _, id := range ids {
		if !keypath.ValidSegment(id) {
			return fmt.Errorf("%w: id %q", domain.ErrInvalidPath, id)
		}
	}
	return nil
}
