package watch

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"live-survey-service/internal/keypath"
)

// Reader loads the current value tree at path.
type Reader func(ctx context.Context, path string) (any, error)

// Hub fans change notifications from an external feed out to local
// subscribers, re-reading each affected path. The memory store does not need
// it; the Redis and Postgres stores do.
type Hub struct {
	read Reader
	log  *zap.Logger

	mu   sync.Mutex
	subs map[*hubSub]struct{}
}

type hubSub struct {
	path string
	sink *Sink
	// serializes read-then-send so a later read is never delivered first
	mu sync.Mutex
}

func NewHub(read Reader, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{read: read, log: log, subs: make(map[*hubSub]struct{})}
}

// Subscribe registers path and delivers its current snapshot.
func (h *Hub) Subscribe(ctx context.Context, path string) (<-chan any, func(), error) {
	sub := &hubSub{path: path, sink: NewSink()}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		sub.sink.Close()
	}
	if err := h.refresh(ctx, sub); err != nil {
		cancel()
		return nil, nil, err
	}
	CancelOnDone(ctx, sub.sink, cancel)
	return sub.sink.C(), cancel, nil
}

// Notify pushes a fresh snapshot to every subscriber whose path overlaps changed.
func (h *Hub) Notify(ctx context.Context, changed string) {
	h.mu.Lock()
	affected := make([]*hubSub, 0, len(h.subs))
	for sub := range h.subs {
		if keypath.Overlaps(sub.path, changed) {
			affected = append(affected, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range affected {
		if err := h.refresh(ctx, sub); err != nil {
			h.log.Warn("snapshot refresh failed", zap.String("path", sub.path), zap.Error(err))
		}
	}
}

func (h *Hub) refresh(ctx context.Context, sub *hubSub) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	v, err := h.read(ctx, sub.path)
	if err != nil {
		return err
	}
	sub.sink.Send(v)
	return nil
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*hubSub]struct{})
	h.mu.Unlock()
	for sub := range subs {
		sub.sink.Close()
	}
}
