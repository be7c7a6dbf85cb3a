package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"live-survey-service/internal/infra/watch"
	"live-survey-service/internal/keypath"
)

// Store is an in-process implementation of the hierarchical key-path store.
// Values are kept as flat JSON leaves; subscribers get a fresh snapshot of
// their path after every change that overlaps it.
type Store struct {
	log *zap.Logger

	mu          sync.RWMutex
	leaves      map[string][]byte
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	path string
	sink *watch.Sink
}

func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		log:         log,
		leaves:      make(map[string][]byte),
		subscribers: make(map[*subscriber]struct{}),
	}
}

func (s *Store) Read(ctx context.Context, path string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := keypath.Clean(path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(path)
}

func (s *Store) Write(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := keypath.Clean(path)
	if err != nil {
		return err
	}
	leaves, err := keypath.Flatten(path, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(path)
	for k, v := range leaves {
		s.leaves[k] = v
	}
	s.log.Debug("memory write", zap.String("path", path), zap.Int("leaves", len(leaves)))
	s.broadcastLocked(path)
	return nil
}

func (s *Store) Update(ctx context.Context, path string, partial map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := keypath.Clean(path)
	if err != nil {
		return err
	}
	resolved, err := keypath.UpdateChildren(path, partial)
	if err != nil {
		return err
	}
	children := make(map[string]map[string][]byte, len(resolved))
	for child, value := range resolved {
		leaves, err := keypath.Flatten(child, value)
		if err != nil {
			return err
		}
		children[child] = leaves
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for child, leaves := range children {
		s.removeLocked(child)
		for k, v := range leaves {
			s.leaves[k] = v
		}
	}
	s.log.Debug("memory update", zap.String("path", path), zap.Int("children", len(children)))
	s.broadcastLocked(path)
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	return s.Write(ctx, path, nil)
}

func (s *Store) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path, err := keypath.Clean(path)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var current float64
	if raw, ok := s.leaves[path]; ok {
		_ = json.Unmarshal(raw, &current)
	}
	next := int64(current) + delta
	s.removeLocked(path)
	s.leaves[path] = []byte(fmt.Sprintf("%d", next))
	s.broadcastLocked(path)
	return next, nil
}

func (s *Store) Create(ctx context.Context, path string, value any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := keypath.Clean(path)
	if err != nil {
		return false, err
	}
	leaves, err := keypath.Flatten(path, value)
	if err != nil {
		return false, err
	}
	if len(leaves) == 0 {
		return false, fmt.Errorf("create %s: empty value", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occupiedLocked(path) {
		return false, nil
	}
	for k, v := range leaves {
		s.leaves[k] = v
	}
	s.broadcastLocked(path)
	return true, nil
}

// Subscribe streams snapshots of path. The first value is the current snapshot.
// The caller must invoke the returned cancel function (or end ctx) to avoid leaks.
func (s *Store) Subscribe(ctx context.Context, path string) (<-chan any, func(), error) {
	path, err := keypath.Clean(path)
	if err != nil {
		return nil, nil, err
	}
	sub := &subscriber{path: path, sink: watch.NewSink()}

	s.mu.Lock()
	initial, err := s.snapshotLocked(path)
	if err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}
	s.subscribers[sub] = struct{}{}
	sub.sink.Send(initial)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subscribers, sub)
		s.mu.Unlock()
		sub.sink.Close()
	}
	watch.CancelOnDone(ctx, sub.sink, cancel)
	return sub.sink.C(), cancel, nil
}

// Subscribers reports the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

func (s *Store) snapshotLocked(path string) (any, error) {
	matched := make(map[string][]byte)
	for k, v := range s.leaves {
		if keypath.Under(k, path) {
			matched[k] = v
		}
	}
	return keypath.Assemble(path, matched)
}

// removeLocked clears path, everything beneath it and any ancestor that is a leaf.
func (s *Store) removeLocked(path string) {
	for k := range s.leaves {
		if keypath.Under(k, path) {
			delete(s.leaves, k)
		}
	}
	if path == "" {
		return
	}
	for _, a := range keypath.Ancestors(path) {
		delete(s.leaves, a)
	}
}

func (s *Store) occupiedLocked(path string) bool {
	for _, a := range keypath.Ancestors(path) {
		if _, ok := s.leaves[a]; ok {
			return true
		}
	}
	for k := range s.leaves {
		if keypath.Under(k, path) {
			return true
		}
	}
	return false
}

func (s *Store) broadcastLocked(changed string) {
	for sub := range s.subscribers {
		if !keypath.Overlaps(sub.path, changed) {
			continue
		}
		snapshot, err := s.snapshotLocked(sub.path)
		if err != nil {
			s.log.Debug("memory snapshot failed", zap.String("path", sub.path), zap.Error(err))
			continue
		}
		sub.sink.Send(snapshot)
	}
}
