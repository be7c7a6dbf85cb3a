package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"live-survey-service/internal/app"
	"live-survey-service/internal/domain"
	"live-survey-service/internal/infra/memory"
)

const adminEmail = "boss@example.com"

func newTestServer(t *testing.T) (*httptest.Server, *app.Services) {
	t.Helper()
	services := app.New(memory.NewStore(nil), nil)
	if _, err := services.Admins.Bootstrap(context.Background(), adminEmail, "Boss"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	server := httptest.NewServer(NewHandler(services, nil).Routes())
	t.Cleanup(server.Close)
	return server, services
}

func doJSON(t *testing.T, server *httptest.Server, method, path, email string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if email != "" {
		req.Header.Set(UserEmailHeader, email)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestSurveyFlowOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)

	var survey domain.Entity
	if status := doJSON(t, server, http.MethodPost, "/surveys", adminEmail, app.NewEntity{Type: domain.EntityTypeSurvey, Title: "Colours"}, &survey); status != http.StatusCreated {
		t.Fatalf("create survey: status %d", status)
	}
	var q domain.Question
	question := app.NewQuestion{Text: "Favourite?", Options: []string{"red", "green"}}
	if status := doJSON(t, server, http.MethodPost, "/surveys/"+survey.ID+"/questions", adminEmail, question, &q); status != http.StatusCreated {
		t.Fatalf("add question: status %d", status)
	}
	if status := doJSON(t, server, http.MethodPut, "/surveys/"+survey.ID+"/active", adminEmail, activeRequest{QuestionID: q.ID}, nil); status != http.StatusNoContent {
		t.Fatalf("set active: status %d", status)
	}

	var byCode domain.Entity
	if status := doJSON(t, server, http.MethodGet, "/codes/"+survey.Code, "", nil, &byCode); status != http.StatusOK {
		t.Fatalf("find by code: status %d", status)
	}
	if byCode.ID != survey.ID || byCode.ActiveQuestionID != q.ID || !byCode.VotingEnabled {
		t.Fatalf("unexpected survey by code: %+v", byCode)
	}

	votes := "/surveys/" + survey.ID + "/questions/" + q.ID + "/votes"
	for _, v := range []voteRequest{{UserID: "user_1", OptionIndex: 1}, {UserID: "user_2", OptionIndex: 1}, {UserID: "user_3", OptionIndex: 0}} {
		if status := doJSON(t, server, http.MethodPost, votes, "", v, nil); status != http.StatusNoContent {
			t.Fatalf("vote %+v: status %d", v, status)
		}
	}
	if status := doJSON(t, server, http.MethodPost, votes, "", voteRequest{OptionIndex: 0}, nil); status != http.StatusBadRequest {
		t.Fatalf("expected anonymous vote without id to fail, got %d", status)
	}
	if status := doJSON(t, server, http.MethodPost, votes, "", voteRequest{UserID: "user_4", OptionIndex: 5}, nil); status != http.StatusBadRequest {
		t.Fatalf("expected out of range option to fail, got %d", status)
	}

	var counts map[string]int
	doJSON(t, server, http.MethodGet, votes, "", nil, &counts)
	if counts["1"] != 2 || counts["0"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	var mine userVote
	doJSON(t, server, http.MethodGet, votes+"/user_3", "", nil, &mine)
	if !mine.Voted || mine.OptionIndex == nil || *mine.OptionIndex != 0 {
		t.Fatalf("unexpected user vote: %+v", mine)
	}

	winnerPath := "/surveys/" + survey.ID + "/questions/" + q.ID + "/winner"
	var draw domain.WinnerDraw
	if status := doJSON(t, server, http.MethodPost, winnerPath, adminEmail, drawRequest{OptionIndex: 1}, &draw); status != http.StatusOK {
		t.Fatalf("draw: status %d", status)
	}
	if draw.TotalVoters != 2 || (draw.WinnerID != "user_1" && draw.WinnerID != "user_2") {
		t.Fatalf("unexpected draw: %+v", draw)
	}

	var note notifications
	doJSON(t, server, http.MethodGet, "/users/"+draw.WinnerID+"/notifications", "", nil, &note)
	if note.Winner == nil || note.Winner.SurveyID != survey.ID {
		t.Fatalf("expected winner notification, got %+v", note)
	}

	if status := doJSON(t, server, http.MethodDelete, votes, adminEmail, nil, nil); status != http.StatusNoContent {
		t.Fatalf("reset: status %d", status)
	}
	if status := doJSON(t, server, http.MethodGet, winnerPath, "", nil, nil); status != http.StatusNoContent {
		t.Fatalf("expected no winner after reset, got %d", status)
	}
	if status := doJSON(t, server, http.MethodPost, winnerPath, adminEmail, drawRequest{OptionIndex: 1}, nil); status != http.StatusConflict {
		t.Fatalf("expected empty pool conflict, got %d", status)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	server, _ := newTestServer(t)

	if status := doJSON(t, server, http.MethodPost, "/surveys", "", app.NewEntity{}, nil); status != http.StatusForbidden {
		t.Fatalf("expected forbidden without email, got %d", status)
	}
	if status := doJSON(t, server, http.MethodGet, "/surveys", "someone@example.com", nil, nil); status != http.StatusForbidden {
		t.Fatalf("expected forbidden for non-admin, got %d", status)
	}

	if status := doJSON(t, server, http.MethodPost, "/admins", "someone@example.com", addAdminRequest{Email: "x@example.com"}, nil); status != http.StatusForbidden {
		t.Fatalf("expected non-superadmin add to be refused, got %d", status)
	}
	if status := doJSON(t, server, http.MethodPost, "/admins", adminEmail, addAdminRequest{Email: "helper@example.com", Name: "Helper"}, nil); status != http.StatusNoContent {
		t.Fatalf("add admin: status %d", status)
	}

	var me adminStatus
	doJSON(t, server, http.MethodGet, "/admins/me", "Helper@Example.com", nil, &me)
	if !me.Admin || me.Info == nil || me.Info.Role != domain.RoleAdmin {
		t.Fatalf("unexpected admin status: %+v", me)
	}

	var list []domain.Admin
	doJSON(t, server, http.MethodGet, "/admins", "helper@example.com", nil, &list)
	if len(list) != 2 {
		t.Fatalf("expected 2 admins, got %+v", list)
	}

	if status := doJSON(t, server, http.MethodDelete, "/admins/helper@example.com", "helper@example.com", nil, nil); status != http.StatusForbidden {
		t.Fatalf("expected plain admin removal to be refused, got %d", status)
	}
	if status := doJSON(t, server, http.MethodDelete, "/admins/helper@example.com", adminEmail, nil, nil); status != http.StatusNoContent {
		t.Fatalf("remove admin: status %d", status)
	}
}

func TestContestFlowOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)

	var contest domain.Entity
	doJSON(t, server, http.MethodPost, "/surveys", adminEmail, app.NewEntity{Type: domain.EntityTypeContest}, &contest)
	if status := doJSON(t, server, http.MethodPost, "/contests/"+contest.ID+"/start", adminEmail, nil, nil); status != http.StatusConflict {
		t.Fatalf("expected start without questions to conflict, got %d", status)
	}

	var q domain.Question
	doJSON(t, server, http.MethodPost, "/surveys/"+contest.ID+"/questions", adminEmail, app.NewQuestion{
		Text: "2 + 2?", Options: []string{"3", "4"}, CorrectAnswers: []int{1}, TimeLimit: 30, Points: 100,
	}, &q)
	if status := doJSON(t, server, http.MethodPost, "/contests/"+contest.ID+"/start", adminEmail, nil, nil); status != http.StatusNoContent {
		t.Fatalf("start: status %d", status)
	}

	responses := "/contests/" + contest.ID + "/questions/" + q.ID + "/responses"
	var res domain.ResponseResult
	if status := doJSON(t, server, http.MethodPost, responses, "ana@example.com", responseRequest{OptionIndex: 1}, &res); status != http.StatusOK {
		t.Fatalf("respond: status %d", status)
	}
	if !res.Correct || res.Awarded <= 0 || res.TotalScore != res.Awarded {
		t.Fatalf("unexpected result: %+v", res)
	}
	if status := doJSON(t, server, http.MethodPost, responses, "ana@example.com", responseRequest{OptionIndex: 1}, nil); status != http.StatusConflict {
		t.Fatalf("expected duplicate response conflict, got %d", status)
	}
	doJSON(t, server, http.MethodPost, responses, "", responseRequest{UserID: "user_2", OptionIndex: 0}, nil)

	var stored domain.Response
	if status := doJSON(t, server, http.MethodGet, responses+"/ana@example,com", "", nil, &stored); status != http.StatusOK || stored.OptionIndex != 1 {
		t.Fatalf("unexpected stored response: %d %+v", status, stored)
	}

	var advanced advanceResult
	doJSON(t, server, http.MethodPost, "/contests/"+contest.ID+"/advance", adminEmail, nil, &advanced)
	if !advanced.Finished {
		t.Fatalf("expected advancing past the last question to finish")
	}

	var rankings []domain.RankingEntry
	doJSON(t, server, http.MethodGet, "/contests/"+contest.ID+"/rankings", "", nil, &rankings)
	if len(rankings) != 2 || rankings[0].UserID != "ana@example,com" || rankings[0].Position != 1 || rankings[1].Score != 0 {
		t.Fatalf("unexpected rankings: %+v", rankings)
	}

	var note notifications
	doJSON(t, server, http.MethodGet, "/users/ana@example,com/notifications", "", nil, &note)
	if note.ContestWinner == nil || note.ContestWinner.Position != 1 {
		t.Fatalf("expected podium notification, got %+v", note)
	}
	if status := doJSON(t, server, http.MethodDelete, "/users/ana@example,com/notifications/contest", "", nil, nil); status != http.StatusNoContent {
		t.Fatalf("dismiss: status %d", status)
	}
}

func TestNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	if status := doJSON(t, server, http.MethodGet, "/surveys/missing", "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for missing survey, got %d", status)
	}
	if status := doJSON(t, server, http.MethodGet, "/codes/ZZZZZZ", "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d", status)
	}
	if status := doJSON(t, server, http.MethodPost, "/contests/missing/start", adminEmail, nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for missing contest, got %d", status)
	}
	if status := doJSON(t, server, http.MethodGet, "/surveys/x%2Fquestions%2Fq", "", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for an id spanning segments, got %d", status)
	}
}
