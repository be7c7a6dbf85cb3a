package scoring

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"live-survey-service/internal/domain"
)

func TestPoints(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	correct := []int{1, 3}

	tests := []struct {
		name   string
		chosen int
		after  time.Duration
		limit  float64
		points int
		want   int
	}{
		{"instant answer earns full points", 1, 0, 30, 100, 100},
		{"half the time left", 3, 15 * time.Second, 30, 100, 50},
		{"exactly at the limit floors at ten percent", 1, 30 * time.Second, 30, 100, 10},
		{"over time still floors", 1, 60 * time.Second, 30, 100, 10},
		{"wrong answer", 0, 0, 30, 100, 0},
		{"wrong answer late", 2, 90 * time.Second, 30, 100, 0},
		{"rounds to nearest", 1, 10 * time.Second, 30, 50, 33},
		{"clock skew is clamped", 1, -5 * time.Second, 30, 100, 100},
		{"missing limit uses default", 1, 15 * time.Second, 0, 100, 50},
		{"missing points uses default", 1, 0, 30, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Points(correct, tt.chosen, start, start.Add(tt.after), tt.limit, tt.points)
			if got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestRankBreaksTiesByUserKey(t *testing.T) {
	got := Rank(map[string]int{"a": 50, "c": 80, "b": 80})
	want := []domain.RankingEntry{
		{UserID: "b", Score: 80, Position: 1},
		{UserID: "c", Score: 80, Position: 2},
		{UserID: "a", Score: 50, Position: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	// Same input, same output.
	if again := Rank(map[string]int{"a": 50, "b": 80, "c": 80}); !reflect.DeepEqual(again, want) {
		t.Fatalf("ranking not deterministic: %+v", again)
	}
}

func TestRankEmpty(t *testing.T) {
	if got := Rank(nil); len(got) != 0 {
		t.Fatalf("expected empty ranking, got %+v", got)
	}
}

func TestPodium(t *testing.T) {
	rankings := Rank(map[string]int{"a": 1, "b": 2, "c": 3, "d": 4})
	top := Podium(rankings, PodiumSize)
	if len(top) != 3 || top[0].UserID != "d" || top[2].UserID != "b" {
		t.Fatalf("unexpected podium %+v", top)
	}
	if got := Podium(rankings[:1], PodiumSize); len(got) != 1 {
		t.Fatalf("expected short podium, got %+v", got)
	}
	for pos := 1; pos <= PodiumSize; pos++ {
		if _, ok := MedalMessage(pos); !ok {
			t.Fatalf("missing medal message for position %d", pos)
		}
	}
	if _, ok := MedalMessage(4); ok {
		t.Fatalf("no medal expected past the podium")
	}
}

func TestSelectWinner(t *testing.T) {
	if _, err := SelectWinner(nil, nil); !errors.Is(err, domain.ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
	for i := 0; i < 20; i++ {
		got, err := SelectWinner([]string{"x"}, nil)
		if err != nil || got != "x" {
			t.Fatalf("expected x, got %q (%v)", got, err)
		}
	}
	got, _ := SelectWinner([]string{"a", "b", "c"}, func(n int) int { return n - 1 })
	if got != "c" {
		t.Fatalf("expected drawn index to pick c, got %s", got)
	}
}
