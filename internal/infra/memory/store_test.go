package memory

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestStoreWriteReadOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	path := "surveys/s1/questions/q1/votes/u1"
	if err := store.Write(ctx, path, 2); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := store.Read(ctx, path)
	if err != nil || got != float64(2) {
		t.Fatalf("expected 2, got %v (%v)", got, err)
	}
	if err := store.Write(ctx, path, 0); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _ := store.Read(ctx, path); got != float64(0) {
		t.Fatalf("expected last write to win, got %v", got)
	}

	votes, err := store.Read(ctx, "surveys/s1/questions/q1/votes")
	if err != nil {
		t.Fatalf("read parent: %v", err)
	}
	if !reflect.DeepEqual(votes, map[string]any{"u1": float64(0)}) {
		t.Fatalf("unexpected parent snapshot %#v", votes)
	}
}

func TestStoreMissingReadsNil(t *testing.T) {
	got, err := NewStore(nil).Read(context.Background(), "surveys/none")
	if err != nil || got != nil {
		t.Fatalf("expected nil, got %v (%v)", got, err)
	}
}

func TestStoreUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	if err := store.Write(ctx, "surveys/s1", map[string]any{"code": "ABC123", "votingEnabled": false}); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := store.Update(ctx, "surveys/s1", map[string]any{
		"votingEnabled":    true,
		"activeQuestionId": "q1",
		"code":             nil,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.Read(ctx, "surveys/s1")
	want := map[string]any{"votingEnabled": true, "activeQuestionId": "q1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v, got %#v", want, got)
	}

	if err := store.Delete(ctx, "surveys/s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := store.Read(ctx, "surveys"); got != nil {
		t.Fatalf("expected empty tree, got %#v", got)
	}
}

func TestStoreWriteReplacesAncestorLeaf(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	_ = store.Write(ctx, "a", "scalar")
	_ = store.Write(ctx, "a/b", 1)
	got, _ := store.Read(ctx, "a")
	if !reflect.DeepEqual(got, map[string]any{"b": float64(1)}) {
		t.Fatalf("expected ancestor leaf replaced, got %#v", got)
	}
}

func TestStoreIncrementIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Increment(ctx, "contests/c1/scores/u1", 10); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := store.Read(ctx, "contests/c1/scores/u1")
	if got != float64(500) {
		t.Fatalf("expected 500, got %v", got)
	}
}

func TestStoreCreateIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	path := "surveys/s1/questions/q1/responses/u1"

	ok, err := store.Create(ctx, path, map[string]any{"optionIndex": 1, "submitted": true})
	if err != nil || !ok {
		t.Fatalf("expected first create to succeed, got %v (%v)", ok, err)
	}
	ok, err = store.Create(ctx, path, map[string]any{"optionIndex": 2, "submitted": true})
	if err != nil || ok {
		t.Fatalf("expected second create to be rejected, got %v (%v)", ok, err)
	}
	got, _ := store.Read(ctx, path+"/optionIndex")
	if got != float64(1) {
		t.Fatalf("expected first value kept, got %v", got)
	}
}

func TestStoreSubscribe(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	updates, cancel, err := store.Subscribe(ctx, "surveys/s1/questions/q1/votes")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if initial := next(t, updates); initial != nil {
		t.Fatalf("expected nil initial snapshot, got %#v", initial)
	}

	_ = store.Write(ctx, "surveys/s1/questions/q1/votes/u1", 1)
	if got := next(t, updates); !reflect.DeepEqual(got, map[string]any{"u1": float64(1)}) {
		t.Fatalf("unexpected update %#v", got)
	}

	// Unrelated paths do not wake the subscriber.
	_ = store.Write(ctx, "surveys/s2/code", "ZZZZZZ")
	select {
	case v := <-updates:
		t.Fatalf("unexpected update %#v", v)
	case <-time.After(50 * time.Millisecond):
	}

	// Removing an ancestor does.
	_ = store.Delete(ctx, "surveys/s1")
	if got := next(t, updates); got != nil {
		t.Fatalf("expected nil after delete, got %#v", got)
	}

	cancel()
	if _, ok := <-updates; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	if store.Subscribers() != 0 {
		t.Fatalf("expected subscription removed")
	}
}

func TestStoreSubscribeStopsOnContextCancel(t *testing.T) {
	store := NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	updates, _, err := store.Subscribe(ctx, "winners/u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	<-updates
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("subscription not closed after context cancel")
		}
	}
}

func next(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
		return nil
	}
}
