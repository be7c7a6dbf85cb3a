package app

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"live-survey-service/internal/domain"
	"live-survey-service/internal/keypath"
)

// VoteService records survey votes, one per user and question, last write wins.
type VoteService struct {
	*env
	surveys       *SurveyService
	notifications *NotificationService
}

// SubmitVote stores the user's choice, replacing any earlier vote on the question.
func (s *VoteService) SubmitVote(ctx context.Context, id, qid, uid string, option int) error {
	if !keypath.ValidSegment(uid) {
		return domain.ErrInvalidUser
	}
	_, q, err := s.surveys.mustGetQuestion(ctx, id, qid)
	if err != nil {
		return err
	}
	if option < 0 || option >= len(q.Options) {
		return domain.ErrInvalidOption
	}
	if err := s.store.Write(ctx, votePath(id, qid, uid), option); err != nil {
		s.log.Error("failed to store vote",
			zap.String("survey_id", id),
			zap.String("question_id", qid),
			zap.Error(err))
		return fmt.Errorf("submit vote: %w", err)
	}
	return nil
}

// HasUserVoted reports whether the user has a vote on the question.
func (s *VoteService) HasUserVoted(ctx context.Context, id, qid, uid string) (bool, error) {
	_, ok, err := s.GetUserVote(ctx, id, qid, uid)
	return ok, err
}

// GetUserVote returns the user's option index; ok is false when there is none.
func (s *VoteService) GetUserVote(ctx context.Context, id, qid, uid string) (int, bool, error) {
	if !keypath.ValidSegment(uid) {
		return 0, false, domain.ErrInvalidUser
	}
	if err := checkIDs(id, qid); err != nil {
		return 0, false, err
	}
	v, err := s.store.Read(ctx, votePath(id, qid, uid))
	if err != nil {
		return 0, false, fmt.Errorf("read vote: %w", err)
	}
	option, ok := asInt(v)
	return option, ok, nil
}

func (s *VoteService) votes(ctx context.Context, id, qid string) (map[string]int, error) {
	if err := checkIDs(id, qid); err != nil {
		return nil, err
	}
	v, err := s.store.Read(ctx, votesPath(id, qid))
	if err != nil {
		return nil, fmt.Errorf("read votes: %w", err)
	}
	return tallySource(v), nil
}

func tallySource(v any) map[string]int {
	raw := children(v)
	votes := make(map[string]int, len(raw))
	for uid, val := range raw {
		if option, ok := asInt(val); ok {
			votes[uid] = option
		}
	}
	return votes
}

// VotersByOption lists the users who chose option, ordered by user key.
func (s *VoteService) VotersByOption(ctx context.Context, id, qid string, option int) ([]string, error) {
	votes, err := s.votes(ctx, id, qid)
	if err != nil {
		return nil, err
	}
	voters := make([]string, 0)
	for uid, choice := range votes {
		if choice == option {
			voters = append(voters, uid)
		}
	}
	sort.Strings(voters)
	return voters, nil
}

// VoteCounts tallies votes per option index. Options without votes are absent.
func (s *VoteService) VoteCounts(ctx context.Context, id, qid string) (map[int]int, error) {
	votes, err := s.votes(ctx, id, qid)
	if err != nil {
		return nil, err
	}
	return countVotes(votes), nil
}

func countVotes(votes map[string]int) map[int]int {
	counts := make(map[int]int)
	for _, option := range votes {
		counts[option]++
	}
	return counts
}

// ListenToVotes streams live tallies for a question, starting with the current one.
func (s *VoteService) ListenToVotes(ctx context.Context, id, qid string) (<-chan map[int]int, func(), error) {
	if err := checkIDs(id, qid); err != nil {
		return nil, nil, err
	}
	return watch(ctx, s.env, votesPath(id, qid), func(v any) (map[int]int, error) {
		return countVotes(tallySource(v)), nil
	})
}

// ResetQuestionVotes clears the question's votes, contest responses, raffle
// winner and that winner's notification. Points the cleared responses earned
// are taken back from the contest scores, so an answer given again after the
// reset is the only one that counts.
func (s *VoteService) ResetQuestionVotes(ctx context.Context, id, qid string) error {
	if _, _, err := s.surveys.mustGetQuestion(ctx, id, qid); err != nil {
		return err
	}
	if err := s.notifications.clearWinnerFor(ctx, id, qid); err != nil {
		return err
	}
	v, err := s.store.Read(ctx, responsesPath(id, qid))
	if err != nil {
		return fmt.Errorf("read responses: %w", err)
	}
	err = s.store.Update(ctx, questionPath(id, qid), map[string]any{
		"votes":     nil,
		"responses": nil,
		"winner":    nil,
	})
	if err != nil {
		return fmt.Errorf("reset votes: %w", err)
	}
	for uid, raw := range children(v) {
		var r responseRecord
		if err := decode(raw, &r); err != nil {
			s.log.Warn("skipping malformed response", zap.String("user_id", uid), zap.Error(err))
			continue
		}
		if r.Points == 0 || !keypath.ValidSegment(uid) {
			continue
		}
		if _, err := s.store.Increment(ctx, scorePath(id, uid), -int64(r.Points)); err != nil {
			return fmt.Errorf("revert score: %w", err)
		}
	}
	s.log.Info("question votes reset", zap.String("survey_id", id), zap.String("question_id", qid))
	return nil
}
