package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"live-survey-service/internal/domain"
	"live-survey-service/internal/keypath"
)

const raffleWinnerMessage = "¡Felicidades! Has sido seleccionado como ganador."

// NotificationService owns the per-user winner records that clients listen on.
type NotificationService struct {
	*env
}

func (s *NotificationService) publishWinner(ctx context.Context, uid string, n winnerNotificationRecord) error {
	if err := s.store.Write(ctx, winnerNotificationPath(uid), n); err != nil {
		return fmt.Errorf("publish winner notification: %w", err)
	}
	s.log.Info("winner notified", zap.String("user_id", uid), zap.String("survey_id", n.SurveyID))
	return nil
}

func (s *NotificationService) publishContestWinner(ctx context.Context, uid string, n contestNotificationRecord) error {
	if err := s.store.Write(ctx, contestWinnerPath(uid), n); err != nil {
		return fmt.Errorf("publish contest notification: %w", err)
	}
	s.log.Info("podium notified",
		zap.String("user_id", uid),
		zap.String("survey_id", n.SurveyID),
		zap.Int("position", n.Position))
	return nil
}

// Winner returns the user's pending raffle notification, nil when there is none.
func (s *NotificationService) Winner(ctx context.Context, uid string) (*domain.WinnerNotification, error) {
	if !keypath.ValidSegment(uid) {
		return nil, domain.ErrInvalidUser
	}
	v, err := s.store.Read(ctx, winnerNotificationPath(uid))
	if err != nil {
		return nil, fmt.Errorf("read winner notification: %w", err)
	}
	return decodeWinnerNotification(v)
}

func decodeWinnerNotification(v any) (*domain.WinnerNotification, error) {
	if v == nil {
		return nil, nil
	}
	var r winnerNotificationRecord
	if err := decode(v, &r); err != nil {
		return nil, err
	}
	n := r.toDomain()
	return &n, nil
}

// ContestWinner returns the user's pending podium notification, nil when there is none.
func (s *NotificationService) ContestWinner(ctx context.Context, uid string) (*domain.ContestNotification, error) {
	if !keypath.ValidSegment(uid) {
		return nil, domain.ErrInvalidUser
	}
	v, err := s.store.Read(ctx, contestWinnerPath(uid))
	if err != nil {
		return nil, fmt.Errorf("read contest notification: %w", err)
	}
	return decodeContestNotification(v)
}

func decodeContestNotification(v any) (*domain.ContestNotification, error) {
	if v == nil {
		return nil, nil
	}
	var r contestNotificationRecord
	if err := decode(v, &r); err != nil {
		return nil, err
	}
	n := r.toDomain()
	return &n, nil
}

// ListenWinner streams the user's raffle notification; nil means none is pending.
func (s *NotificationService) ListenWinner(ctx context.Context, uid string) (<-chan *domain.WinnerNotification, func(), error) {
	if !keypath.ValidSegment(uid) {
		return nil, nil, domain.ErrInvalidUser
	}
	return watch(ctx, s.env, winnerNotificationPath(uid), decodeWinnerNotification)
}

// ListenContestWinner streams the user's podium notification.
func (s *NotificationService) ListenContestWinner(ctx context.Context, uid string) (<-chan *domain.ContestNotification, func(), error) {
	if !keypath.ValidSegment(uid) {
		return nil, nil, domain.ErrInvalidUser
	}
	return watch(ctx, s.env, contestWinnerPath(uid), decodeContestNotification)
}

// ClearWinner dismisses the user's raffle notification.
func (s *NotificationService) ClearWinner(ctx context.Context, uid string) error {
	if !keypath.ValidSegment(uid) {
		return domain.ErrInvalidUser
	}
	if err := s.store.Delete(ctx, winnerNotificationPath(uid)); err != nil {
		return fmt.Errorf("clear winner notification: %w", err)
	}
	return nil
}

// ClearContestWinner dismisses the user's podium notification.
func (s *NotificationService) ClearContestWinner(ctx context.Context, uid string) error {
	if !keypath.ValidSegment(uid) {
		return domain.ErrInvalidUser
	}
	if err := s.store.Delete(ctx, contestWinnerPath(uid)); err != nil {
		return fmt.Errorf("clear contest notification: %w", err)
	}
	return nil
}

// ClearAllWinners drops every pending raffle notification.
func (s *NotificationService) ClearAllWinners(ctx context.Context) error {
	if err := s.store.Delete(ctx, rootWinners); err != nil {
		return fmt.Errorf("clear winner notifications: %w", err)
	}
	s.log.Info("all winner notifications cleared")
	return nil
}

// clearWinnerFor removes the question's raffle winner and, if it still points
// at this question, the winner's notification.
func (s *NotificationService) clearWinnerFor(ctx context.Context, id, qid string) error {
	v, err := s.store.Read(ctx, winnerPath(id, qid))
	if err != nil {
		return fmt.Errorf("read winner: %w", err)
	}
	if v == nil {
		return nil
	}
	var w winnerRecord
	if err := decode(v, &w); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, winnerPath(id, qid)); err != nil {
		return fmt.Errorf("clear winner: %w", err)
	}
	if w.UserID == "" || !keypath.ValidSegment(w.UserID) {
		return nil
	}
	pending, err := s.Winner(ctx, w.UserID)
	if err != nil {
		return err
	}
	if pending != nil && pending.SurveyID == id && pending.QuestionID == qid {
		return s.ClearWinner(ctx, w.UserID)
	}
	return nil
}

// clearSurvey drops every raffle and podium notification that points at the
// entity id.
func (s *NotificationService) clearSurvey(ctx context.Context, id string) error {
	for _, root := range []string{rootWinners, rootContestWinners} {
		v, err := s.store.Read(ctx, root)
		if err != nil {
			return fmt.Errorf("read notifications: %w", err)
		}
		for uid, raw := range children(v) {
			var n struct {
				SurveyID string `mapstructure:"surveyId"`
			}
			if err := decode(raw, &n); err != nil || n.SurveyID != id {
				continue
			}
			if err := s.store.Delete(ctx, keypath.Join(root, uid)); err != nil {
				return fmt.Errorf("clear notification: %w", err)
			}
		}
	}
	return nil
}

// clearPodiumFor removes the podium notifications of a previous finish of the contest.
func (s *NotificationService) clearPodiumFor(ctx context.Context, id string, previous []domain.RankingEntry) error {
	for _, entry := range previous {
		if !keypath.ValidSegment(entry.UserID) {
			continue
		}
		pending, err := s.ContestWinner(ctx, entry.UserID)
		if err != nil {
			return err
		}
		if pending != nil && pending.SurveyID == id {
			if err := s.ClearContestWinner(ctx, entry.UserID); err != nil {
				return err
			}
		}
	}
	return nil
}
