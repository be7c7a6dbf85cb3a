package app_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"live-survey-service/internal/domain"
)

func TestSubmitVoteLastWriteWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, qs := f.survey(t, domain.EntityTypeSurvey, colorQuestion())
	votes := f.services.Votes

	if voted, err := votes.HasUserVoted(ctx, e.ID, qs[0].ID, "u1"); err != nil || voted {
		t.Fatalf("expected no vote yet, got %v (%v)", voted, err)
	}
	if err := votes.SubmitVote(ctx, e.ID, qs[0].ID, "u1", 2); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := votes.SubmitVote(ctx, e.ID, qs[0].ID, "u1", 0); err != nil {
		t.Fatalf("revote: %v", err)
	}
	option, ok, err := votes.GetUserVote(ctx, e.ID, qs[0].ID, "u1")
	if err != nil || !ok || option != 0 {
		t.Fatalf("expected option 0, got %d %v (%v)", option, ok, err)
	}
	counts, err := votes.VoteCounts(ctx, e.ID, qs[0].ID)
	if err != nil || !reflect.DeepEqual(counts, map[int]int{0: 1}) {
		t.Fatalf("unexpected counts %v (%v)", counts, err)
	}
}

func TestSubmitVoteValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, qs := f.survey(t, domain.EntityTypeSurvey, colorQuestion())

	cases := []struct {
		name   string
		id     string
		qid    string
		uid    string
		option int
		want   error
	}{
		{"missing survey", "nope", qs[0].ID, "u1", 0, domain.ErrNotFound},
		{"missing question", e.ID, "nope", "u1", 0, domain.ErrQuestionNotFound},
		{"negative option", e.ID, qs[0].ID, "u1", -1, domain.ErrInvalidOption},
		{"option past end", e.ID, qs[0].ID, "u1", 3, domain.ErrInvalidOption},
		{"bad user key", e.ID, qs[0].ID, "a.b", 0, domain.ErrInvalidUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.services.Votes.SubmitVote(ctx, tc.id, tc.qid, tc.uid, tc.option)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestVotersByOptionAndLiveTallies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, qs := f.survey(t, domain.EntityTypeSurvey, colorQuestion())
	qid := qs[0].ID

	ch, cancel, err := f.services.Votes.ListenToVotes(ctx, e.ID, qid)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer cancel()
	if got := receive(t, ch); len(got) != 0 {
		t.Fatalf("expected empty tally, got %v", got)
	}

	for uid, option := range map[string]int{"carol": 1, "alice": 1, "bob": 2} {
		if err := f.services.Votes.SubmitVote(ctx, e.ID, qid, uid, option); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	var last map[int]int
	for i := 0; i < 3; i++ {
		last = receive(t, ch)
	}
	if !reflect.DeepEqual(last, map[int]int{1: 2, 2: 1}) {
		t.Fatalf("unexpected tally %v", last)
	}

	voters, err := f.services.Votes.VotersByOption(ctx, e.ID, qid, 1)
	if err != nil || !reflect.DeepEqual(voters, []string{"alice", "carol"}) {
		t.Fatalf("unexpected voters %v (%v)", voters, err)
	}
	none, _ := f.services.Votes.VotersByOption(ctx, e.ID, qid, 0)
	if len(none) != 0 {
		t.Fatalf("expected no voters, got %v", none)
	}
}

func TestResetQuestionVotes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, qs := f.survey(t, domain.EntityTypeSurvey, colorQuestion())
	qid := qs[0].ID

	for _, uid := range []string{"u1", "u2"} {
		if err := f.services.Votes.SubmitVote(ctx, e.ID, qid, uid, 1); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	draw, err := f.services.Winners.SelectRandomWinner(ctx, e.ID, qid, 1)
	if err != nil {
		t.Fatalf("raffle: %v", err)
	}

	if err := f.services.Votes.ResetQuestionVotes(ctx, e.ID, qid); err != nil {
		t.Fatalf("reset: %v", err)
	}
	counts, _ := f.services.Votes.VoteCounts(ctx, e.ID, qid)
	if len(counts) != 0 {
		t.Fatalf("expected no votes, got %v", counts)
	}
	if w, _ := f.services.Winners.GetQuestionWinner(ctx, e.ID, qid); w != nil {
		t.Fatalf("expected winner cleared, got %+v", w)
	}
	if n, _ := f.services.Notifications.Winner(ctx, draw.WinnerID); n != nil {
		t.Fatalf("expected notification cleared, got %+v", n)
	}
	got, _ := f.services.Surveys.Get(ctx, e.ID)
	if len(got.Questions) != 1 || got.Questions[0].Text != colorQuestion().Text {
		t.Fatalf("reset damaged the question: %+v", got.Questions)
	}
}

func TestResetKeepsNotificationOfOtherSurvey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, aq := f.survey(t, domain.EntityTypeSurvey, colorQuestion())
	b, bq := f.survey(t, domain.EntityTypeSurvey, colorQuestion())

	for _, s := range []struct {
		id, qid string
	}{{a.ID, aq[0].ID}, {b.ID, bq[0].ID}} {
		if err := f.services.Votes.SubmitVote(ctx, s.id, s.qid, "u1", 0); err != nil {
			t.Fatalf("vote: %v", err)
		}
		if _, err := f.services.Winners.SelectRandomWinner(ctx, s.id, s.qid, 0); err != nil {
			t.Fatalf("raffle: %v", err)
		}
	}

	// u1's notification now points at survey b; resetting a must not drop it.
	if err := f.services.Votes.ResetQuestionVotes(ctx, a.ID, aq[0].ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	n, err := f.services.Notifications.Winner(ctx, "u1")
	if err != nil || n == nil || n.SurveyID != b.ID {
		t.Fatalf("expected notification for %s, got %+v (%v)", b.ID, n, err)
	}
}
