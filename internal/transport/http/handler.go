package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"live-survey-service/internal/app"
	"live-survey-service/internal/domain"
	"live-survey-service/internal/identity"
)

// UserEmailHeader carries the caller's authenticated email. Sign-in happens
// upstream; requests without it act anonymously.
const UserEmailHeader = "X-User-Email"

// Handler serves the REST commands and the WebSocket subscriptions.
type Handler struct {
	services *app.Services
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(services *app.Services, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		services: services,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /ws", h.ServeWS)

	// Voter side
	mux.HandleFunc("GET /identity/anonymous", h.withLogging(h.newAnonymousID))
	mux.HandleFunc("GET /codes/{code}", h.withLogging(h.findByCode))
	mux.HandleFunc("GET /surveys/{id}", h.withLogging(h.getSurvey))
	mux.HandleFunc("POST /surveys/{id}/questions/{qid}/votes", h.withLogging(h.submitVote))
	mux.HandleFunc("GET /surveys/{id}/questions/{qid}/votes", h.withLogging(h.voteCounts))
	mux.HandleFunc("GET /surveys/{id}/questions/{qid}/votes/{uid}", h.withLogging(h.userVote))
	mux.HandleFunc("GET /surveys/{id}/questions/{qid}/winner", h.withLogging(h.getWinner))
	mux.HandleFunc("POST /contests/{id}/questions/{qid}/responses", h.withLogging(h.submitResponse))
	mux.HandleFunc("GET /contests/{id}/questions/{qid}/responses/{uid}", h.withLogging(h.getResponse))
	mux.HandleFunc("GET /contests/{id}/scores", h.withLogging(h.scores))
	mux.HandleFunc("GET /contests/{id}/leaderboard", h.withLogging(h.leaderboard))
	mux.HandleFunc("GET /contests/{id}/rankings", h.withLogging(h.rankings))
	mux.HandleFunc("GET /users/{uid}/notifications", h.withLogging(h.notifications))
	mux.HandleFunc("DELETE /users/{uid}/notifications/winner", h.withLogging(h.dismissWinner))
	mux.HandleFunc("DELETE /users/{uid}/notifications/contest", h.withLogging(h.dismissContestWinner))

	// Admin side
	mux.HandleFunc("GET /surveys", h.withLogging(h.requireAdmin(h.listSurveys)))
	mux.HandleFunc("POST /surveys", h.withLogging(h.requireAdmin(h.createSurvey)))
	mux.HandleFunc("PATCH /surveys/{id}", h.withLogging(h.requireAdmin(h.renameSurvey)))
	mux.HandleFunc("DELETE /surveys/{id}", h.withLogging(h.requireAdmin(h.deleteSurvey)))
	mux.HandleFunc("POST /surveys/{id}/questions", h.withLogging(h.requireAdmin(h.addQuestion)))
	mux.HandleFunc("PATCH /surveys/{id}/questions/{qid}", h.withLogging(h.requireAdmin(h.updateQuestion)))
	mux.HandleFunc("DELETE /surveys/{id}/questions/{qid}", h.withLogging(h.requireAdmin(h.deleteQuestion)))
	mux.HandleFunc("PUT /surveys/{id}/active", h.withLogging(h.requireAdmin(h.setActive)))
	mux.HandleFunc("DELETE /surveys/{id}/active", h.withLogging(h.requireAdmin(h.deactivate)))
	mux.HandleFunc("PUT /surveys/{id}/voting", h.withLogging(h.requireAdmin(h.toggleVoting)))
	mux.HandleFunc("DELETE /surveys/{id}/questions/{qid}/votes", h.withLogging(h.requireAdmin(h.resetVotes)))
	mux.HandleFunc("GET /surveys/{id}/questions/{qid}/voters", h.withLogging(h.requireAdmin(h.voters)))
	mux.HandleFunc("POST /surveys/{id}/questions/{qid}/winner", h.withLogging(h.requireAdmin(h.drawWinner)))
	mux.HandleFunc("DELETE /surveys/{id}/questions/{qid}/winner", h.withLogging(h.requireAdmin(h.clearWinner)))
	mux.HandleFunc("POST /contests/{id}/start", h.withLogging(h.requireAdmin(h.startContest)))
	mux.HandleFunc("POST /contests/{id}/advance", h.withLogging(h.requireAdmin(h.advanceContest)))
	mux.HandleFunc("POST /contests/{id}/finish", h.withLogging(h.requireAdmin(h.finishContest)))
	mux.HandleFunc("DELETE /notifications/winners", h.withLogging(h.requireAdmin(h.clearAllWinners)))
	mux.HandleFunc("GET /admins", h.withLogging(h.requireAdmin(h.listAdmins)))
	mux.HandleFunc("GET /admins/me", h.withLogging(h.adminMe))
	mux.HandleFunc("POST /admins", h.withLogging(h.addAdmin))
	mux.HandleFunc("DELETE /admins/{email}", h.withLogging(h.removeAdmin))
	return mux
}

// requireAdmin rejects callers whose email is not in the admin directory.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := h.services.Admins.IsAdmin(r.Context(), r.Header.Get(UserEmailHeader))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !ok {
			h.fail(w, r, domain.ErrUnauthorized)
			return
		}
		next(w, r)
	}
}

// userID resolves the acting voter: the signed-in email key, else the
// anonymous id supplied by the client.
func userID(r *http.Request, anonymous string) (string, error) {
	return identity.Resolve(r.Header.Get(UserEmailHeader), strings.TrimSpace(anonymous))
}

func (h *Handler) newAnonymousID(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"userId": identity.AnonymousID(time.Now(), nil)})
}
