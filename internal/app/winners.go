package app

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"live-survey-service/internal/domain"
	"live-survey-service/internal/scoring"
)

// WinnerService runs raffles among the voters of one option.
type WinnerService struct {
	*env
	surveys       *SurveyService
	notifications *NotificationService
}

// SelectRandomWinner draws a uniform winner among the voters of option and
// notifies them. An empty pool fails with domain.ErrEmptyPool and leaves any
// earlier winner in place.
func (s *WinnerService) SelectRandomWinner(ctx context.Context, id, qid string, option int) (domain.WinnerDraw, error) {
	_, q, err := s.surveys.mustGetQuestion(ctx, id, qid)
	if err != nil {
		return domain.WinnerDraw{}, err
	}
	if option < 0 || option >= len(q.Options) {
		return domain.WinnerDraw{}, domain.ErrInvalidOption
	}

	v, err := s.store.Read(ctx, votesPath(id, qid))
	if err != nil {
		return domain.WinnerDraw{}, fmt.Errorf("read votes: %w", err)
	}
	voters := make([]string, 0)
	for uid, choice := range tallySource(v) {
		if choice == option {
			voters = append(voters, uid)
		}
	}
	sort.Strings(voters)

	winner, err := scoring.SelectWinner(voters, s.intn)
	if err != nil {
		s.log.Warn("raffle without voters",
			zap.String("survey_id", id),
			zap.String("question_id", qid),
			zap.Int("option", option))
		return domain.WinnerDraw{}, err
	}

	if err := s.notifications.clearWinnerFor(ctx, id, qid); err != nil {
		return domain.WinnerDraw{}, err
	}
	selectedAt := millis(s.now())
	record := winnerRecord{UserID: winner, OptionIndex: option, SelectedAt: selectedAt}
	if err := s.store.Write(ctx, winnerPath(id, qid), record); err != nil {
		return domain.WinnerDraw{}, fmt.Errorf("store winner: %w", err)
	}
	err = s.notifications.publishWinner(ctx, winner, winnerNotificationRecord{
		SurveyID:    id,
		QuestionID:  qid,
		OptionIndex: option,
		SelectedAt:  selectedAt,
		Message:     raffleWinnerMessage,
	})
	if err != nil {
		return domain.WinnerDraw{}, err
	}

	s.log.Info("raffle winner selected",
		zap.String("survey_id", id),
		zap.String("question_id", qid),
		zap.String("user_id", winner),
		zap.Int("pool", len(voters)))
	return domain.WinnerDraw{WinnerID: winner, TotalVoters: len(voters)}, nil
}

// ClearWinner removes the question's winner and its pending notification.
func (s *WinnerService) ClearWinner(ctx context.Context, id, qid string) error {
	if err := checkIDs(id, qid); err != nil {
		return err
	}
	return s.notifications.clearWinnerFor(ctx, id, qid)
}

// GetQuestionWinner returns the question's winner, nil when none was drawn.
func (s *WinnerService) GetQuestionWinner(ctx context.Context, id, qid string) (*domain.Winner, error) {
	if err := checkIDs(id, qid); err != nil {
		return nil, err
	}
	v, err := s.store.Read(ctx, winnerPath(id, qid))
	if err != nil {
		return nil, fmt.Errorf("read winner: %w", err)
	}
	if v == nil {
		return nil, nil
	}
	var r winnerRecord
	if err := decode(v, &r); err != nil {
		return nil, err
	}
	w := r.toDomain()
	return &w, nil
}
