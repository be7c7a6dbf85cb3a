package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu     sync.Mutex
	values map[string]any
	fail   bool
}

func (f *fakeSource) read(_ context.Context, path string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("down")
	}
	return f.values[path], nil
}

func (f *fakeSource) set(path string, v any) {
	f.mu.Lock()
	f.values[path] = v
	f.mu.Unlock()
}

func TestHubDeliversOverlappingChanges(t *testing.T) {
	src := &fakeSource{values: map[string]any{"a/b": 1}}
	hub := NewHub(src.read, nil)

	ch, cancel, err := hub.Subscribe(context.Background(), "a/b")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if v := recv(t, ch); v != 1 {
		t.Fatalf("expected initial 1, got %v", v)
	}

	hub.Notify(context.Background(), "x/y")
	src.set("a/b", 2)
	hub.Notify(context.Background(), "a")
	if v := recv(t, ch); v != 2 {
		t.Fatalf("expected 2 after ancestor change, got %v", v)
	}
	src.set("a/b", 3)
	hub.Notify(context.Background(), "a/b/c")
	if v := recv(t, ch); v != 3 {
		t.Fatalf("expected 3 after descendant change, got %v", v)
	}
}

func TestHubSubscribeFailsWhenReadFails(t *testing.T) {
	src := &fakeSource{values: map[string]any{}, fail: true}
	hub := NewHub(src.read, nil)
	if _, _, err := hub.Subscribe(context.Background(), "a"); err == nil {
		t.Fatalf("expected error")
	}
	if hub.Len() != 0 {
		t.Fatalf("failed subscription left registered")
	}
}

func TestHubCancelAndClose(t *testing.T) {
	src := &fakeSource{values: map[string]any{}}
	hub := NewHub(src.read, nil)
	ctx, cancelCtx := context.WithCancel(context.Background())

	ch, _, err := hub.Subscribe(ctx, "a")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	other, _, err := hub.Subscribe(context.Background(), "b")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancelCtx()
	drain(t, ch)

	hub.Close()
	drain(t, other)
	if hub.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", hub.Len())
	}
}

func recv(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out")
	}
	return nil
}

func drain(t *testing.T, ch <-chan any) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("channel not closed")
		}
	}
}
