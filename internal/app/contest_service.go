package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"live-survey-service/internal/domain"
	"live-survey-service/internal/keypath"
	"live-survey-service/internal/scoring"
)

// ContestService drives the contest lifecycle and its scoring.
//
//	NotStarted -> InProgress -> Finished
//
// Advancing past the last question finishes the contest. Finish may be
// repeated; each run replaces the previous rankings and podium notifications.
type ContestService struct {
	*env
	surveys       *SurveyService
	notifications *NotificationService
}

func (s *ContestService) contest(ctx context.Context, id string) (domain.Entity, error) {
	e, err := s.surveys.mustGet(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	if e.Type != domain.EntityTypeContest || e.Contest == nil {
		return domain.Entity{}, domain.ErrWrongType
	}
	return e, nil
}

// Start opens the first question and starts the clock.
func (s *ContestService) Start(ctx context.Context, id string) error {
	e, err := s.contest(ctx, id)
	if err != nil {
		return err
	}
	if e.Contest.Phase != domain.PhaseNotStarted {
		return fmt.Errorf("%w: start from %s", domain.ErrInvalidTransition, e.Contest.Phase)
	}
	if len(e.Questions) == 0 {
		return domain.ErrNoQuestions
	}
	err = s.store.Update(ctx, surveyPath(id), map[string]any{
		"contestStarted":       true,
		"contestFinished":      false,
		"currentQuestionIndex": 0,
		"questionStartTime":    millis(s.now()),
		"activeQuestionId":     e.Questions[0].ID,
		"votingEnabled":        true,
	})
	if err != nil {
		return fmt.Errorf("start contest: %w", err)
	}
	s.log.Info("contest started", zap.String("survey_id", id), zap.Int("questions", len(e.Questions)))
	return nil
}

// Advance moves to the next question. Past the last one it finishes the
// contest and reports finished=true.
func (s *ContestService) Advance(ctx context.Context, id string) (finished bool, err error) {
	e, err := s.contest(ctx, id)
	if err != nil {
		return false, err
	}
	if e.Contest.Phase != domain.PhaseInProgress {
		return false, fmt.Errorf("%w: advance from %s", domain.ErrInvalidTransition, e.Contest.Phase)
	}
	next := currentIndex(e) + 1
	if next >= len(e.Questions) {
		if _, err := s.finish(ctx, e); err != nil {
			return false, err
		}
		return true, nil
	}
	err = s.store.Update(ctx, surveyPath(id), map[string]any{
		"currentQuestionIndex": next,
		"questionStartTime":    millis(s.now()),
		"activeQuestionId":     e.Questions[next].ID,
		"votingEnabled":        true,
	})
	if err != nil {
		return false, fmt.Errorf("advance contest: %w", err)
	}
	s.log.Info("contest advanced", zap.String("survey_id", id), zap.Int("index", next))
	return false, nil
}

// currentIndex locates the active question in the ordered list, falling back
// to the stored index when the active question is gone.
func currentIndex(e domain.Entity) int {
	for i, q := range e.Questions {
		if q.ID == e.ActiveQuestionID {
			return i
		}
	}
	return e.Contest.CurrentQuestionIndex
}

// Finish ends the contest, persists the final rankings and notifies the podium.
func (s *ContestService) Finish(ctx context.Context, id string) ([]domain.RankingEntry, error) {
	e, err := s.contest(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Contest.Phase == domain.PhaseNotStarted {
		return nil, fmt.Errorf("%w: finish from %s", domain.ErrInvalidTransition, e.Contest.Phase)
	}
	return s.finish(ctx, e)
}

func (s *ContestService) finish(ctx context.Context, e domain.Entity) ([]domain.RankingEntry, error) {
	id := e.ID
	err := s.store.Update(ctx, surveyPath(id), map[string]any{
		"contestFinished":  true,
		"activeQuestionId": nil,
		"votingEnabled":    false,
	})
	if err != nil {
		return nil, fmt.Errorf("finish contest: %w", err)
	}

	scores, err := s.Scores(ctx, id)
	if err != nil {
		return nil, err
	}
	rankings := scoring.Rank(scores)

	previous, err := s.FinalRankings(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.notifications.clearPodiumFor(ctx, id, scoring.Podium(previous, scoring.PodiumSize)); err != nil {
		return nil, err
	}
	if err := s.store.Write(ctx, rankingsPath(id), rankingsToRecords(rankings)); err != nil {
		return nil, fmt.Errorf("store rankings: %w", err)
	}

	now := millis(s.now())
	for _, entry := range scoring.Podium(rankings, scoring.PodiumSize) {
		message, ok := scoring.MedalMessage(entry.Position)
		if !ok || !keypath.ValidSegment(entry.UserID) {
			continue
		}
		err := s.notifications.publishContestWinner(ctx, entry.UserID, contestNotificationRecord{
			SurveyID:  id,
			Position:  entry.Position,
			Score:     entry.Score,
			Message:   message,
			Timestamp: now,
		})
		if err != nil {
			return nil, err
		}
	}
	s.log.Info("contest finished", zap.String("survey_id", id), zap.Int("participants", len(rankings)))
	return rankings, nil
}

// SubmitResponse records the user's answer to the active question and adds
// its points to the user's score. Each user answers a question once; a second
// submission fails with domain.ErrAlreadyResponded and scores nothing.
func (s *ContestService) SubmitResponse(ctx context.Context, id, qid, uid string, option int) (domain.ResponseResult, error) {
	if !keypath.ValidSegment(uid) {
		return domain.ResponseResult{}, domain.ErrInvalidUser
	}
	e, err := s.contest(ctx, id)
	if err != nil {
		return domain.ResponseResult{}, err
	}
	q, ok := e.Question(qid)
	if !ok {
		return domain.ResponseResult{}, domain.ErrQuestionNotFound
	}
	if e.Contest.Phase != domain.PhaseInProgress || e.ActiveQuestionID != qid || !e.VotingEnabled {
		s.log.Warn("response to inactive question",
			zap.String("survey_id", id),
			zap.String("question_id", qid),
			zap.String("user_id", uid))
		return domain.ResponseResult{}, domain.ErrQuestionNotActive
	}
	if option < 0 || option >= len(q.Options) {
		return domain.ResponseResult{}, domain.ErrInvalidOption
	}

	var correct []int
	var limit, base int
	if q.Scoring != nil {
		correct, limit, base = q.Scoring.CorrectAnswers, q.Scoring.TimeLimit, q.Scoring.Points
	}
	answeredAt := s.now()
	points := scoring.Points(correct, option, e.Contest.QuestionStartTime, answeredAt, float64(limit), base)
	created, err := s.store.Create(ctx, responsePath(id, qid, uid), responseRecord{
		OptionIndex:  option,
		ResponseTime: millis(answeredAt),
		Submitted:    true,
		Points:       points,
	})
	if err != nil {
		return domain.ResponseResult{}, fmt.Errorf("store response: %w", err)
	}
	if !created {
		s.log.Warn("duplicate response rejected",
			zap.String("survey_id", id),
			zap.String("question_id", qid),
			zap.String("user_id", uid))
		return domain.ResponseResult{}, domain.ErrAlreadyResponded
	}

	total, err := s.store.Increment(ctx, scorePath(id, uid), int64(points))
	if err != nil {
		return domain.ResponseResult{}, fmt.Errorf("add score: %w", err)
	}
	return domain.ResponseResult{
		QuestionID: qid,
		Correct:    scoring.IsCorrect(correct, option),
		Awarded:    points,
		TotalScore: int(total),
	}, nil
}

// Response returns the user's answer to a question, nil when there is none.
func (s *ContestService) Response(ctx context.Context, id, qid, uid string) (*domain.Response, error) {
	if !keypath.ValidSegment(uid) {
		return nil, domain.ErrInvalidUser
	}
	if err := checkIDs(id, qid); err != nil {
		return nil, err
	}
	v, err := s.store.Read(ctx, responsePath(id, qid, uid))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if v == nil {
		return nil, nil
	}
	var r responseRecord
	if err := decode(v, &r); err != nil {
		return nil, err
	}
	resp := r.toDomain()
	return &resp, nil
}

// Scores returns the running score of every participant.
func (s *ContestService) Scores(ctx context.Context, id string) (map[string]int, error) {
	if err := checkIDs(id); err != nil {
		return nil, err
	}
	v, err := s.store.Read(ctx, scoresPath(id))
	if err != nil {
		return nil, fmt.Errorf("read scores: %w", err)
	}
	return tallySource(v), nil
}

// Leaderboard ranks the current scores without finishing the contest.
func (s *ContestService) Leaderboard(ctx context.Context, id string) ([]domain.RankingEntry, error) {
	scores, err := s.Scores(ctx, id)
	if err != nil {
		return nil, err
	}
	return scoring.Rank(scores), nil
}

// FinalRankings returns the rankings stored by the last Finish, empty before that.
func (s *ContestService) FinalRankings(ctx context.Context, id string) ([]domain.RankingEntry, error) {
	if err := checkIDs(id); err != nil {
		return nil, err
	}
	v, err := s.store.Read(ctx, rankingsPath(id))
	if err != nil {
		return nil, fmt.Errorf("read rankings: %w", err)
	}
	return decodeRankings(v)
}

func decodeRankings(v any) ([]domain.RankingEntry, error) {
	if v == nil {
		return []domain.RankingEntry{}, nil
	}
	var records []rankingRecord
	if err := decode(v, &records); err != nil {
		return nil, err
	}
	return rankingsFromRecords(records), nil
}

// ListenScores streams the running scores.
func (s *ContestService) ListenScores(ctx context.Context, id string) (<-chan map[string]int, func(), error) {
	if err := checkIDs(id); err != nil {
		return nil, nil, err
	}
	return watch(ctx, s.env, scoresPath(id), func(v any) (map[string]int, error) {
		return tallySource(v), nil
	})
}

// ListenRankings streams the final rankings; the stream stays empty until the contest finishes.
func (s *ContestService) ListenRankings(ctx context.Context, id string) (<-chan []domain.RankingEntry, func(), error) {
	if err := checkIDs(id); err != nil {
		return nil, nil, err
	}
	return watch(ctx, s.env, rankingsPath(id), decodeRankings)
}
