package http

import (
	"net/http"
	"strconv"

	"live-survey-service/internal/app"
	"live-survey-service/internal/domain"
)

type renameRequest struct {
	Title string `json:"title"`
}

type questionCreated struct {
	ID string `json:"id"`
}

type activeRequest struct {
	QuestionID string `json:"questionId"`
}

type votingRequest struct {
	Enabled bool `json:"enabled"`
}

type voteRequest struct {
	UserID      string `json:"userId"`
	OptionIndex int    `json:"optionIndex"`
}

type userVote struct {
	Voted       bool `json:"voted"`
	OptionIndex *int `json:"optionIndex"`
}

type drawRequest struct {
	OptionIndex int `json:"optionIndex"`
}

type notifications struct {
	Winner        *domain.WinnerNotification  `json:"winner"`
	ContestWinner *domain.ContestNotification `json:"contestWinner"`
}

func (h *Handler) listSurveys(w http.ResponseWriter, r *http.Request) {
	list, err := h.services.Surveys.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Entity{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createSurvey(w http.ResponseWriter, r *http.Request) {
	var in app.NewEntity
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	e, err := h.services.Surveys.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) getSurvey(w http.ResponseWriter, r *http.Request) {
	e, err := h.services.Surveys.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if e == nil {
		h.fail(w, r, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) findByCode(w http.ResponseWriter, r *http.Request) {
	e, err := h.services.Surveys.FindByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if e == nil {
		h.fail(w, r, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) renameSurvey(w http.ResponseWriter, r *http.Request) {
	var in renameRequest
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.services.Surveys.Rename(r.Context(), r.PathValue("id"), in.Title); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteSurvey(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Surveys.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addQuestion(w http.ResponseWriter, r *http.Request) {
	var in app.NewQuestion
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	q, err := h.services.Surveys.AddQuestion(r.Context(), r.PathValue("id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var in app.QuestionUpdate
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.services.Surveys.UpdateQuestion(r.Context(), r.PathValue("id"), r.PathValue("qid"), in); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Surveys.DeleteQuestion(r.Context(), r.PathValue("id"), r.PathValue("qid")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	var in activeRequest
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.services.Surveys.SetActiveQuestion(r.Context(), r.PathValue("id"), in.QuestionID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Surveys.DeactivateQuestion(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleVoting(w http.ResponseWriter, r *http.Request) {
	var in votingRequest
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.services.Surveys.ToggleVoting(r.Context(), r.PathValue("id"), in.Enabled); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submitVote(w http.ResponseWriter, r *http.Request) {
	var in voteRequest
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	uid, err := userID(r, in.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.services.Votes.SubmitVote(r.Context(), r.PathValue("id"), r.PathValue("qid"), uid, in.OptionIndex); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) voteCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.services.Votes.VoteCounts(r.Context(), r.PathValue("id"), r.PathValue("qid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) userVote(w http.ResponseWriter, r *http.Request) {
	option, ok, err := h.services.Votes.GetUserVote(r.Context(), r.PathValue("id"), r.PathValue("qid"), r.PathValue("uid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := userVote{Voted: ok}
	if ok {
		out.OptionIndex = &option
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) voters(w http.ResponseWriter, r *http.Request) {
	option, err := strconv.Atoi(r.URL.Query().Get("option"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid option")
		return
	}
	list, err := h.services.Votes.VotersByOption(r.Context(), r.PathValue("id"), r.PathValue("qid"), option)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []string{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) resetVotes(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Votes.ResetQuestionVotes(r.Context(), r.PathValue("id"), r.PathValue("qid")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) drawWinner(w http.ResponseWriter, r *http.Request) {
	var in drawRequest
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	draw, err := h.services.Winners.SelectRandomWinner(r.Context(), r.PathValue("id"), r.PathValue("qid"), in.OptionIndex)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draw)
}

func (h *Handler) getWinner(w http.ResponseWriter, r *http.Request) {
	winner, err := h.services.Winners.GetQuestionWinner(r.Context(), r.PathValue("id"), r.PathValue("qid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if winner == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, winner)
}

func (h *Handler) clearWinner(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Winners.ClearWinner(r.Context(), r.PathValue("id"), r.PathValue("qid")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	winner, err := h.services.Notifications.Winner(r.Context(), uid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	contest, err := h.services.Notifications.ContestWinner(r.Context(), uid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications{Winner: winner, ContestWinner: contest})
}

func (h *Handler) dismissWinner(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Notifications.ClearWinner(r.Context(), r.PathValue("uid")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) dismissContestWinner(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Notifications.ClearContestWinner(r.Context(), r.PathValue("uid")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearAllWinners(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Notifications.ClearAllWinners(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
