package domain

import "time"

// EntityType tags which payload an Entity carries.
type EntityType string

const (
	EntityTypeSurvey  EntityType = "survey"
	EntityTypeContest EntityType = "contest"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	return t == EntityTypeSurvey || t == EntityTypeContest
}

// ContestPhase is the contest lifecycle state.
type ContestPhase string

const (
	PhaseNotStarted ContestPhase = "not_started"
	PhaseInProgress ContestPhase = "in_progress"
	PhaseFinished   ContestPhase = "finished"
)

// Role is an admin privilege level.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Entity is a survey or a contest. Contest is set only when Type is EntityTypeContest.
type Entity struct {
	ID               string        `json:"id"`
	Code             string        `json:"code"`
	Type             EntityType    `json:"type"`
	Title            string        `json:"title,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	ActiveQuestionID string        `json:"activeQuestionId,omitempty"`
	VotingEnabled    bool          `json:"votingEnabled"`
	Questions        []Question    `json:"questions"`
	Contest          *ContestState `json:"contest,omitempty"`
}

// Question returns the question with the given ID.
func (e Entity) Question(id string) (Question, bool) {
	for _, q := range e.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// ContestState is the contest-only part of an entity.
type ContestState struct {
	Phase                ContestPhase `json:"phase"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
	QuestionStartTime    time.Time    `json:"questionStartTime"`
}

// Question is an item with ordered options. Scoring is set only for contest questions.
type Question struct {
	ID      string           `json:"id"`
	Text    string           `json:"text"`
	Options []string         `json:"options"`
	Scoring *QuestionScoring `json:"scoring,omitempty"`
}

// QuestionScoring holds the correctness set and the speed-weighting inputs.
type QuestionScoring struct {
	CorrectAnswers []int `json:"correctAnswers"`
	TimeLimit      int   `json:"timeLimit"` // seconds
	Points         int   `json:"points"`
}

// ActiveQuestion is what voters see while a question is live.
type ActiveQuestion struct {
	Question
	VotingEnabled bool `json:"votingEnabled"`
}

// Response is a contest answer.
type Response struct {
	OptionIndex  int       `json:"optionIndex"`
	ResponseTime time.Time `json:"responseTime"`
	Submitted    bool      `json:"submitted"`
}

// ResponseResult summarizes the outcome of a contest submission for a single user.
type ResponseResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"totalScore"`
}

// Winner is the raffle result stored on a survey question.
type Winner struct {
	UserID      string    `json:"userId"`
	OptionIndex int       `json:"optionIndex"`
	SelectedAt  time.Time `json:"selectedAt"`
}

// WinnerDraw is returned by a raffle.
type WinnerDraw struct {
	WinnerID    string `json:"winnerId"`
	TotalVoters int    `json:"totalVoters"`
}

// WinnerNotification is the pending per-user record for a raffle win.
type WinnerNotification struct {
	SurveyID    string    `json:"surveyId"`
	QuestionID  string    `json:"questionId"`
	OptionIndex int       `json:"optionIndex"`
	SelectedAt  time.Time `json:"selectedAt"`
	Message     string    `json:"message"`
}

// ContestNotification is the pending per-user record for a podium finish.
type ContestNotification struct {
	SurveyID  string    `json:"surveyId"`
	Position  int       `json:"position"`
	Score     int       `json:"score"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RankingEntry is one row of a contest ranking.
type RankingEntry struct {
	UserID   string `json:"userId"`
	Score    int    `json:"score"`
	Position int    `json:"position"`
}

// Admin is an entry of the admin directory.
type Admin struct {
	EmailKey string    `json:"emailKey"`
	Role     Role      `json:"role"`
	Name     string    `json:"name"`
	AddedAt  time.Time `json:"addedAt"`
}
