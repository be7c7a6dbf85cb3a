package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"live-survey-service/internal/domain"
	"live-survey-service/internal/joincode"
	"live-survey-service/internal/keypath"
)

// NewEntity describes a survey or contest to create.
type NewEntity struct {
	Type  domain.EntityType `json:"type"`
	Title string            `json:"title"`
}

// NewQuestion describes a question to append. Scoring fields only apply to contests.
type NewQuestion struct {
	Text           string   `json:"text"`
	Options        []string `json:"options"`
	CorrectAnswers []int    `json:"correctAnswers,omitempty"`
	TimeLimit      int      `json:"timeLimit,omitempty"`
	Points         int      `json:"points,omitempty"`
}

// QuestionUpdate lists the question fields to change; nil fields are kept.
type QuestionUpdate struct {
	Text           *string  `json:"text,omitempty"`
	Options        []string `json:"options,omitempty"`
	CorrectAnswers []int    `json:"correctAnswers,omitempty"`
	TimeLimit      *int     `json:"timeLimit,omitempty"`
	Points         *int     `json:"points,omitempty"`
}

// SurveyService manages entities, their questions and the active-question controls.
type SurveyService struct {
	*env
	codes         CodeResolver
	notifications *NotificationService
	sf            singleflight.Group
}

func newSurveyService(e *env) *SurveyService {
	s := &SurveyService{env: e}
	var loader CodeLoader = codeIndex{store: e.store}
	if e.codeCache != nil {
		s.codes = e.codeCache(loader)
	} else {
		s.codes = uncachedCodes{loader}
	}
	return s
}

// Create stores a new entity under a freshly generated, globally unique join code.
func (s *SurveyService) Create(ctx context.Context, in NewEntity) (domain.Entity, error) {
	if in.Type == "" {
		in.Type = domain.EntityTypeSurvey
	}
	if !in.Type.Valid() {
		return domain.Entity{}, fmt.Errorf("%w: %q", domain.ErrWrongType, in.Type)
	}

	id := s.newID()
	code, err := s.reserveCode(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}

	record := entityRecord{
		Code:      code,
		Type:      string(in.Type),
		Title:     strings.TrimSpace(in.Title),
		CreatedAt: millis(s.now()),
	}
	if err := s.store.Write(ctx, surveyPath(id), record); err != nil {
		s.log.Error("failed to create survey", zap.String("survey_id", id), zap.Error(err))
		return domain.Entity{}, fmt.Errorf("create survey: %w", err)
	}
	s.log.Info("survey created",
		zap.String("survey_id", id),
		zap.String("code", code),
		zap.String("type", string(in.Type)))
	return record.toDomain(id), nil
}

// reserveCode draws codes against the current code set and claims one with a
// write-once reservation, so concurrent creators never share a code.
func (s *SurveyService) reserveCode(ctx context.Context, id string) (string, error) {
	existing, err := s.existingCodes(ctx)
	if err != nil {
		return "", err
	}
	for {
		code := joincode.Generate(existing, s.intn)
		ok, err := s.store.Create(ctx, codePath(code), id)
		if err != nil {
			return "", fmt.Errorf("reserve code: %w", err)
		}
		if ok {
			return code, nil
		}
		s.log.Debug("join code taken, drawing again", zap.String("code", code))
		existing[code] = struct{}{}
	}
}

// existingCodes snapshots every reserved code. Concurrent callers share one read.
func (s *SurveyService) existingCodes(ctx context.Context) (map[string]struct{}, error) {
	v, err, _ := s.sf.Do(rootCodes, func() (interface{}, error) {
		return s.store.Read(ctx, rootCodes)
	})
	if err != nil {
		return nil, fmt.Errorf("read codes: %w", err)
	}
	keys := keypath.SortedKeys(v)
	codes := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		codes[k] = struct{}{}
	}
	return codes, nil
}

// Get returns the entity or nil when it does not exist.
func (s *SurveyService) Get(ctx context.Context, id string) (*domain.Entity, error) {
	if err := checkIDs(id); err != nil {
		return nil, err
	}
	v, err := s.store.Read(ctx, surveyPath(id))
	if err != nil {
		return nil, fmt.Errorf("read survey: %w", err)
	}
	return decodeEntity(id, v)
}

func decodeEntity(id string, v any) (*domain.Entity, error) {
	if v == nil {
		return nil, nil
	}
	var record entityRecord
	if err := decode(v, &record); err != nil {
		return nil, err
	}
	e := record.toDomain(id)
	return &e, nil
}

// mustGet is Get for operations that cannot proceed without the entity.
func (s *SurveyService) mustGet(ctx context.Context, id string) (domain.Entity, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	if e == nil {
		return domain.Entity{}, domain.ErrNotFound
	}
	return *e, nil
}

func (s *SurveyService) mustGetQuestion(ctx context.Context, id, qid string) (domain.Entity, domain.Question, error) {
	if err := checkIDs(id, qid); err != nil {
		return domain.Entity{}, domain.Question{}, err
	}
	e, err := s.mustGet(ctx, id)
	if err != nil {
		return domain.Entity{}, domain.Question{}, err
	}
	q, ok := e.Question(qid)
	if !ok {
		return domain.Entity{}, domain.Question{}, domain.ErrQuestionNotFound
	}
	return e, q, nil
}

// FindByCode resolves a join code, case-insensitively. Unknown codes yield nil.
func (s *SurveyService) FindByCode(ctx context.Context, code string) (*domain.Entity, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !joincode.Valid(code) {
		return nil, nil
	}
	id, err := s.codes.LookupCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// List returns every entity, oldest first.
func (s *SurveyService) List(ctx context.Context) ([]domain.Entity, error) {
	v, err := s.store.Read(ctx, rootSurveys)
	if err != nil {
		return nil, fmt.Errorf("read surveys: %w", err)
	}
	all, _ := v.(map[string]any)
	out := make([]domain.Entity, 0, len(all))
	for _, id := range keypath.SortedKeys(v) {
		e, err := decodeEntity(id, all[id])
		if err != nil {
			s.log.Warn("skipping malformed survey", zap.String("survey_id", id), zap.Error(err))
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// Rename changes the display title. Code and type are immutable.
func (s *SurveyService) Rename(ctx context.Context, id, title string) error {
	if _, err := s.mustGet(ctx, id); err != nil {
		return err
	}
	if err := s.store.Update(ctx, surveyPath(id), map[string]any{"title": strings.TrimSpace(title)}); err != nil {
		return fmt.Errorf("update survey: %w", err)
	}
	return nil
}

// Delete removes the entity, its contest data, its code reservation and the
// pending notifications that point at it.
func (s *SurveyService) Delete(ctx context.Context, id string) error {
	e, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, surveyPath(id)); err != nil {
		return fmt.Errorf("delete survey: %w", err)
	}
	if err := s.store.Delete(ctx, contestPath(id)); err != nil {
		return fmt.Errorf("delete contest data: %w", err)
	}
	if err := s.store.Delete(ctx, codePath(e.Code)); err != nil {
		return fmt.Errorf("release code: %w", err)
	}
	if s.notifications != nil {
		if err := s.notifications.clearSurvey(ctx, id); err != nil {
			return err
		}
	}
	s.codes.Forget(e.Code)
	s.log.Info("survey deleted", zap.String("survey_id", id), zap.String("code", e.Code))
	return nil
}

// AddQuestion appends a question and returns it.
func (s *SurveyService) AddQuestion(ctx context.Context, id string, in NewQuestion) (domain.Question, error) {
	e, err := s.mustGet(ctx, id)
	if err != nil {
		return domain.Question{}, err
	}
	record := questionRecord{Text: strings.TrimSpace(in.Text), Options: in.Options}
	if err := validateQuestion(record.Text, record.Options); err != nil {
		return domain.Question{}, err
	}
	if e.Type == domain.EntityTypeContest {
		if err := validateCorrectAnswers(in.CorrectAnswers, len(in.Options)); err != nil {
			return domain.Question{}, err
		}
		record.CorrectAnswers = in.CorrectAnswers
		record.TimeLimit = in.TimeLimit
		record.Points = in.Points
	}

	qid := s.newID()
	if err := s.store.Write(ctx, questionPath(id, qid), record); err != nil {
		return domain.Question{}, fmt.Errorf("add question: %w", err)
	}
	s.log.Debug("question added", zap.String("survey_id", id), zap.String("question_id", qid))
	return record.toDomain(qid, e.Type), nil
}

func validateQuestion(text string, options []string) error {
	if text == "" || len(options) < 2 {
		return domain.ErrInvalidQuestion
	}
	for _, opt := range options {
		if strings.TrimSpace(opt) == "" {
			return domain.ErrInvalidQuestion
		}
	}
	return nil
}

func validateCorrectAnswers(correct []int, options int) error {
	for _, c := range correct {
		if c < 0 || c >= options {
			return domain.ErrInvalidOption
		}
	}
	return nil
}

// UpdateQuestion changes the given question fields.
func (s *SurveyService) UpdateQuestion(ctx context.Context, id, qid string, in QuestionUpdate) error {
	e, q, err := s.mustGetQuestion(ctx, id, qid)
	if err != nil {
		return err
	}
	partial := make(map[string]any)
	text, options := q.Text, q.Options
	if in.Text != nil {
		text = strings.TrimSpace(*in.Text)
		partial["text"] = text
	}
	if in.Options != nil {
		options = in.Options
		partial["options"] = in.Options
	}
	if err := validateQuestion(text, options); err != nil {
		return err
	}
	if e.Type == domain.EntityTypeContest {
		if in.CorrectAnswers != nil {
			if err := validateCorrectAnswers(in.CorrectAnswers, len(options)); err != nil {
				return err
			}
			partial["correctAnswers"] = in.CorrectAnswers
		}
		if in.TimeLimit != nil {
			partial["timeLimit"] = *in.TimeLimit
		}
		if in.Points != nil {
			partial["points"] = *in.Points
		}
	}
	if len(partial) == 0 {
		return nil
	}
	if err := s.store.Update(ctx, questionPath(id, qid), partial); err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return nil
}

// DeleteQuestion removes a question with its votes, responses and winner.
// A running contest keeps its questions, since its position indexes them.
func (s *SurveyService) DeleteQuestion(ctx context.Context, id, qid string) error {
	e, _, err := s.mustGetQuestion(ctx, id, qid)
	if err != nil {
		return err
	}
	if e.Contest != nil && e.Contest.Phase == domain.PhaseInProgress {
		return fmt.Errorf("%w: delete question of a running contest", domain.ErrInvalidTransition)
	}
	if err := s.store.Delete(ctx, questionPath(id, qid)); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

// SetActiveQuestion shows a question to voters and opens voting.
func (s *SurveyService) SetActiveQuestion(ctx context.Context, id, qid string) error {
	if _, _, err := s.mustGetQuestion(ctx, id, qid); err != nil {
		return err
	}
	err := s.store.Update(ctx, surveyPath(id), map[string]any{
		"activeQuestionId": qid,
		"votingEnabled":    true,
	})
	if err != nil {
		return fmt.Errorf("activate question: %w", err)
	}
	s.log.Info("question activated", zap.String("survey_id", id), zap.String("question_id", qid))
	return nil
}

// ToggleVoting opens or closes voting on the active question.
func (s *SurveyService) ToggleVoting(ctx context.Context, id string, enabled bool) error {
	if _, err := s.mustGet(ctx, id); err != nil {
		return err
	}
	if err := s.store.Update(ctx, surveyPath(id), map[string]any{"votingEnabled": enabled}); err != nil {
		return fmt.Errorf("toggle voting: %w", err)
	}
	return nil
}

// DeactivateQuestion hides the active question and closes voting.
func (s *SurveyService) DeactivateQuestion(ctx context.Context, id string) error {
	if _, err := s.mustGet(ctx, id); err != nil {
		return err
	}
	err := s.store.Update(ctx, surveyPath(id), map[string]any{
		"activeQuestionId": nil,
		"votingEnabled":    false,
	})
	if err != nil {
		return fmt.Errorf("deactivate question: %w", err)
	}
	return nil
}

// Listen streams the entity; nil means it was deleted or never existed.
func (s *SurveyService) Listen(ctx context.Context, id string) (<-chan *domain.Entity, func(), error) {
	if err := checkIDs(id); err != nil {
		return nil, nil, err
	}
	return watch(ctx, s.env, surveyPath(id), func(v any) (*domain.Entity, error) {
		return decodeEntity(id, v)
	})
}

// ListenActiveQuestion streams the question voters should see; nil when none is active.
func (s *SurveyService) ListenActiveQuestion(ctx context.Context, id string) (<-chan *domain.ActiveQuestion, func(), error) {
	if err := checkIDs(id); err != nil {
		return nil, nil, err
	}
	return watch(ctx, s.env, surveyPath(id), func(v any) (*domain.ActiveQuestion, error) {
		e, err := decodeEntity(id, v)
		if err != nil || e == nil || e.ActiveQuestionID == "" {
			return nil, err
		}
		q, ok := e.Question(e.ActiveQuestionID)
		if !ok {
			return nil, nil
		}
		return &domain.ActiveQuestion{Question: q, VotingEnabled: e.VotingEnabled}, nil
	})
}

// codeIndex resolves codes through the codes/{code} reservations.
type codeIndex struct {
	store Store
}

func (c codeIndex) LookupCode(ctx context.Context, code string) (string, error) {
	v, err := c.store.Read(ctx, codePath(code))
	if err != nil {
		return "", fmt.Errorf("read code: %w", err)
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return "", domain.ErrNotFound
	}
	return id, nil
}

type uncachedCodes struct {
	CodeLoader
}

func (uncachedCodes) Forget(string) {}
