package app

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"live-survey-service/internal/domain"
)

// Storage shapes. Timestamps are unix milliseconds; survey and contest fields
// share one record selected by the type tag.

type entityRecord struct {
	Code                 string                    `json:"code" mapstructure:"code"`
	Type                 string                    `json:"type" mapstructure:"type"`
	Title                string                    `json:"title,omitempty" mapstructure:"title"`
	CreatedAt            int64                     `json:"createdAt" mapstructure:"createdAt"`
	ActiveQuestionID     string                    `json:"activeQuestionId,omitempty" mapstructure:"activeQuestionId"`
	VotingEnabled        bool                      `json:"votingEnabled" mapstructure:"votingEnabled"`
	CurrentQuestionIndex *int                      `json:"currentQuestionIndex,omitempty" mapstructure:"currentQuestionIndex"`
	ContestStarted       bool                      `json:"contestStarted,omitempty" mapstructure:"contestStarted"`
	ContestFinished      bool                      `json:"contestFinished,omitempty" mapstructure:"contestFinished"`
	QuestionStartTime    int64                     `json:"questionStartTime,omitempty" mapstructure:"questionStartTime"`
	Questions            map[string]questionRecord `json:"questions,omitempty" mapstructure:"questions"`
}

type questionRecord struct {
	Text           string                    `json:"text" mapstructure:"text"`
	Options        []string                  `json:"options" mapstructure:"options"`
	CorrectAnswers []int                     `json:"correctAnswers,omitempty" mapstructure:"correctAnswers"`
	TimeLimit      int                       `json:"timeLimit,omitempty" mapstructure:"timeLimit"`
	Points         int                       `json:"points,omitempty" mapstructure:"points"`
	Votes          map[string]int            `json:"votes,omitempty" mapstructure:"votes"`
	Responses      map[string]responseRecord `json:"responses,omitempty" mapstructure:"responses"`
	Winner         *winnerRecord             `json:"winner,omitempty" mapstructure:"winner"`
}

type responseRecord struct {
	OptionIndex  int   `json:"optionIndex" mapstructure:"optionIndex"`
	ResponseTime int64 `json:"responseTime" mapstructure:"responseTime"`
	Submitted    bool  `json:"submitted" mapstructure:"submitted"`
	// Points awarded when the response was scored, reverted on reset.
	Points int `json:"points" mapstructure:"points"`
}

type winnerRecord struct {
	UserID      string `json:"userId" mapstructure:"userId"`
	OptionIndex int    `json:"optionIndex" mapstructure:"optionIndex"`
	SelectedAt  int64  `json:"selectedAt" mapstructure:"selectedAt"`
}

type winnerNotificationRecord struct {
	SurveyID    string `json:"surveyId" mapstructure:"surveyId"`
	QuestionID  string `json:"questionId" mapstructure:"questionId"`
	OptionIndex int    `json:"optionIndex" mapstructure:"optionIndex"`
	SelectedAt  int64  `json:"selectedAt" mapstructure:"selectedAt"`
	Message     string `json:"message" mapstructure:"message"`
}

type contestNotificationRecord struct {
	SurveyID  string `json:"surveyId" mapstructure:"surveyId"`
	Position  int    `json:"position" mapstructure:"position"`
	Score     int    `json:"score" mapstructure:"score"`
	Message   string `json:"message" mapstructure:"message"`
	Timestamp int64  `json:"timestamp" mapstructure:"timestamp"`
}

type rankingRecord struct {
	UserID   string `json:"userId" mapstructure:"userId"`
	Score    int    `json:"score" mapstructure:"score"`
	Position int    `json:"position" mapstructure:"position"`
}

type adminRecord struct {
	Role    string `json:"role" mapstructure:"role"`
	Name    string `json:"name" mapstructure:"name"`
	AddedAt int64  `json:"addedAt" mapstructure:"addedAt"`
}

// decode maps a value tree onto a record. Objects whose keys happened to read
// back as an array are turned back into objects when the target is a map.
func decode(value any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       listToMapHook,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(value); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

func listToMapHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Slice || to.Kind() != reflect.Map {
		return data, nil
	}
	list, ok := data.([]any)
	if !ok {
		return data, nil
	}
	m := make(map[string]any, len(list))
	for i, v := range list {
		if v != nil {
			m[strconv.Itoa(i)] = v
		}
	}
	return m, nil
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (r entityRecord) toDomain(id string) domain.Entity {
	e := domain.Entity{
		ID:               id,
		Code:             r.Code,
		Type:             domain.EntityType(r.Type),
		Title:            r.Title,
		CreatedAt:        fromMillis(r.CreatedAt),
		ActiveQuestionID: r.ActiveQuestionID,
		VotingEnabled:    r.VotingEnabled,
		Questions:        make([]domain.Question, 0, len(r.Questions)),
	}
	if e.Type == "" {
		e.Type = domain.EntityTypeSurvey
	}

	// Question ids are time-ordered, so key order is creation order.
	ids := make([]string, 0, len(r.Questions))
	for qid := range r.Questions {
		ids = append(ids, qid)
	}
	sort.Strings(ids)
	for _, qid := range ids {
		e.Questions = append(e.Questions, r.Questions[qid].toDomain(qid, e.Type))
	}

	if e.Type == domain.EntityTypeContest {
		state := &domain.ContestState{
			Phase:             domain.PhaseNotStarted,
			QuestionStartTime: fromMillis(r.QuestionStartTime),
		}
		if r.CurrentQuestionIndex != nil {
			state.CurrentQuestionIndex = *r.CurrentQuestionIndex
		}
		switch {
		case r.ContestFinished:
			state.Phase = domain.PhaseFinished
		case r.ContestStarted:
			state.Phase = domain.PhaseInProgress
		}
		e.Contest = state
	}
	return e
}

func (r questionRecord) toDomain(id string, typ domain.EntityType) domain.Question {
	q := domain.Question{ID: id, Text: r.Text, Options: r.Options}
	if q.Options == nil {
		q.Options = []string{}
	}
	if typ == domain.EntityTypeContest {
		q.Scoring = &domain.QuestionScoring{
			CorrectAnswers: r.CorrectAnswers,
			TimeLimit:      r.TimeLimit,
			Points:         r.Points,
		}
	}
	return q
}

func (r responseRecord) toDomain() domain.Response {
	return domain.Response{
		OptionIndex:  r.OptionIndex,
		ResponseTime: fromMillis(r.ResponseTime),
		Submitted:    r.Submitted,
	}
}

func (r winnerRecord) toDomain() domain.Winner {
	return domain.Winner{UserID: r.UserID, OptionIndex: r.OptionIndex, SelectedAt: fromMillis(r.SelectedAt)}
}

func (r winnerNotificationRecord) toDomain() domain.WinnerNotification {
	return domain.WinnerNotification{
		SurveyID:    r.SurveyID,
		QuestionID:  r.QuestionID,
		OptionIndex: r.OptionIndex,
		SelectedAt:  fromMillis(r.SelectedAt),
		Message:     r.Message,
	}
}

func (r contestNotificationRecord) toDomain() domain.ContestNotification {
	return domain.ContestNotification{
		SurveyID:  r.SurveyID,
		Position:  r.Position,
		Score:     r.Score,
		Message:   r.Message,
		Timestamp: fromMillis(r.Timestamp),
	}
}

func rankingsFromRecords(records []rankingRecord) []domain.RankingEntry {
	out := make([]domain.RankingEntry, 0, len(records))
	for _, r := range records {
		out = append(out, domain.RankingEntry{UserID: r.UserID, Score: r.Score, Position: r.Position})
	}
	return out
}

func rankingsToRecords(entries []domain.RankingEntry) []rankingRecord {
	out := make([]rankingRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, rankingRecord{UserID: e.UserID, Score: e.Score, Position: e.Position})
	}
	return out
}

// children returns the child map of a value tree, turning arrays back into
// index-keyed maps.
func children(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case []any:
		m := make(map[string]any, len(t))
		for i, c := range t {
			if c != nil {
				m[strconv.Itoa(i)] = c
			}
		}
		return m
	}
	return nil
}

// asInt reads a JSON number leaf.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
