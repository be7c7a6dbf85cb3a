package http

import (
	"net/http"

	"live-survey-service/internal/domain"
)

type responseRequest struct {
	UserID      string `json:"userId"`
	OptionIndex int    `json:"optionIndex"`
}

type advanceResult struct {
	Finished bool `json:"finished"`
}

func rankingsOrEmpty(list []domain.RankingEntry) []domain.RankingEntry {
	if list == nil {
		return []domain.RankingEntry{}
	}
	return list
}

func (h *Handler) startContest(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Contests.Start(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) advanceContest(w http.ResponseWriter, r *http.Request) {
	finished, err := h.services.Contests.Advance(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResult{Finished: finished})
}

func (h *Handler) finishContest(w http.ResponseWriter, r *http.Request) {
	rankings, err := h.services.Contests.Finish(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rankingsOrEmpty(rankings))
}

func (h *Handler) submitResponse(w http.ResponseWriter, r *http.Request) {
	var in responseRequest
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	uid, err := userID(r, in.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.services.Contests.SubmitResponse(r.Context(), r.PathValue("id"), r.PathValue("qid"), uid, in.OptionIndex)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getResponse(w http.ResponseWriter, r *http.Request) {
	resp, err := h.services.Contests.Response(r.Context(), r.PathValue("id"), r.PathValue("qid"), r.PathValue("uid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) scores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.services.Contests.Scores(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if scores == nil {
		scores = map[string]int{}
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	list, err := h.services.Contests.Leaderboard(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rankingsOrEmpty(list))
}

func (h *Handler) rankings(w http.ResponseWriter, r *http.Request) {
	list, err := h.services.Contests.FinalRankings(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rankingsOrEmpty(list))
}
