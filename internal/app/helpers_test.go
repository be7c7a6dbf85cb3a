package app_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"live-survey-service/internal/app"
	"live-survey-service/internal/domain"
	"live-survey-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store    *memory.Store
	services *app.Services
	clock    *fakeClock
}

func newFixture(t *testing.T, opts ...app.Option) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	var mu sync.Mutex
	seq := 0
	ids := func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("id%04d", seq)
	}
	rnd := rand.New(rand.NewSource(1))
	intn := func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		return rnd.Intn(n)
	}
	store := memory.NewStore(nil)
	base := []app.Option{
		app.WithClock(clock.Now),
		app.WithIDs(ids),
		app.WithRand(intn),
	}
	return &fixture{
		store:    store,
		services: app.New(store, nil, append(base, opts...)...),
		clock:    clock,
	}
}

func (f *fixture) survey(t *testing.T, typ domain.EntityType, questions ...app.NewQuestion) (domain.Entity, []domain.Question) {
	t.Helper()
	ctx := context.Background()
	e, err := f.services.Surveys.Create(ctx, app.NewEntity{Type: typ, Title: "test"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	added := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		got, err := f.services.Surveys.AddQuestion(ctx, e.ID, q)
		if err != nil {
			t.Fatalf("add question: %v", err)
		}
		added = append(added, got)
	}
	return e, added
}

func colorQuestion() app.NewQuestion {
	return app.NewQuestion{Text: "Favourite colour?", Options: []string{"red", "green", "blue"}}
}

func contestQuestion(correct ...int) app.NewQuestion {
	return app.NewQuestion{
		Text:           "2 + 2?",
		Options:        []string{"3", "4", "5"},
		CorrectAnswers: correct,
		TimeLimit:      30,
		Points:         100,
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("stream closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for update")
	}
	var zero T
	return zero
}
