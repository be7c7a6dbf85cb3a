package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"live-survey-service/internal/domain"
	"live-survey-service/internal/infra/watch"
	"live-survey-service/internal/keypath"
)

// DefaultPrefix namespaces every key the store touches.
const DefaultPrefix = "survey:"

// Store keeps the key-path tree in Redis, one string key per leaf. Mutations
// run as Lua scripts so subtree replacement is atomic; every change is
// announced on a pub/sub channel that all instances listen to.
type Store struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
	hub    *watch.Hub

	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewStore(client *redis.Client, prefix string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Store{client: client, prefix: prefix, log: log}
	s.hub = watch.NewHub(s.Read, log)
	return s
}

func (s *Store) indexKey() string   { return s.prefix + "index" }
func (s *Store) nodePrefix() string { return s.prefix + "node:" }
func (s *Store) channel() string    { return s.prefix + "changes" }

func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// subtreeRange returns the ZRANGEBYLEX bounds of everything strictly below path.
func subtreeRange(path string) (string, string) {
	if path == "" {
		return "-", "+"
	}
	// '0' is the byte after '/'.
	return "[" + path + "/", "(" + path + "0"
}

func (s *Store) Read(ctx context.Context, path string) (any, error) {
	path, err := keypath.Clean(path)
	if err != nil {
		return nil, err
	}
	lo, hi := subtreeRange(path)
	flat, err := readScript.Run(ctx, s.client, []string{s.indexKey()}, s.nodePrefix(), lo, hi, path).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("read", err)
	}
	leaves := make(map[string][]byte, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		leaves[flat[i]] = []byte(flat[i+1])
	}
	return keypath.Assemble(path, leaves)
}

func (s *Store) Write(ctx context.Context, path string, value any) error {
	path, err := keypath.Clean(path)
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("%w: cannot replace the root", domain.ErrInvalidPath)
	}
	leaves, err := keypath.Flatten(path, value)
	if err != nil {
		return err
	}
	return s.replace(ctx, path, []string{path}, leaves)
}

func (s *Store) Update(ctx context.Context, path string, partial map[string]any) error {
	path, err := keypath.Clean(path)
	if err != nil {
		return err
	}
	resolved, err := keypath.UpdateChildren(path, partial)
	if err != nil {
		return err
	}
	cleared := make([]string, 0, len(resolved))
	leaves := make(map[string][]byte)
	for child, value := range resolved {
		childLeaves, err := keypath.Flatten(child, value)
		if err != nil {
			return err
		}
		cleared = append(cleared, child)
		for k, v := range childLeaves {
			leaves[k] = v
		}
	}
	sort.Strings(cleared)
	return s.replace(ctx, path, cleared, leaves)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	return s.Write(ctx, path, nil)
}

func (s *Store) replace(ctx context.Context, changed string, cleared []string, leaves map[string][]byte) error {
	args := make([]any, 0, 2+len(cleared)+2*len(leaves))
	args = append(args, s.nodePrefix(), len(cleared))
	for _, p := range cleared {
		args = append(args, p)
	}
	args = appendLeaves(args, leaves)
	if err := replaceScript.Run(ctx, s.client, []string{s.indexKey()}, args...).Err(); err != nil {
		return unavailable("write", err)
	}
	s.log.Debug("redis write", zap.String("path", changed), zap.Int("leaves", len(leaves)))
	s.publish(ctx, changed)
	return nil
}

func appendLeaves(args []any, leaves map[string][]byte) []any {
	keys := make([]string, 0, len(leaves))
	for k := range leaves {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, string(leaves[k]))
	}
	return args
}

// Increment adds delta with INCRBY. The counter must be a leaf; nothing is
// stored beneath score paths.
func (s *Store) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	path, err := keypath.Clean(path)
	if err != nil {
		return 0, err
	}
	if path == "" {
		return 0, fmt.Errorf("%w: cannot increment the root", domain.ErrInvalidPath)
	}
	var incr *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: 0, Member: path})
		incr = pipe.IncrBy(ctx, s.nodePrefix()+path, delta)
		return nil
	})
	if err != nil {
		return 0, unavailable("increment", err)
	}
	s.publish(ctx, path)
	return incr.Val(), nil
}

func (s *Store) Create(ctx context.Context, path string, value any) (bool, error) {
	path, err := keypath.Clean(path)
	if err != nil {
		return false, err
	}
	leaves, err := keypath.Flatten(path, value)
	if err != nil {
		return false, err
	}
	if path == "" || len(leaves) == 0 {
		return false, fmt.Errorf("create %q: empty value", path)
	}
	args := appendLeaves([]any{s.nodePrefix(), path}, leaves)
	created, err := createScript.Run(ctx, s.client, []string{s.indexKey()}, args...).Int()
	if err != nil {
		return false, unavailable("create", err)
	}
	if created == 0 {
		return false, nil
	}
	s.publish(ctx, path)
	return true, nil
}

// publish announces a change. A lost announcement only delays listeners until
// the next change, so failures are logged rather than returned.
func (s *Store) publish(ctx context.Context, path string) {
	if err := s.client.Publish(ctx, s.channel(), path).Err(); err != nil {
		s.log.Warn("failed to publish change", zap.String("path", path), zap.Error(err))
	}
}

// Subscribe streams snapshots of path, starting with the current one.
func (s *Store) Subscribe(ctx context.Context, path string) (<-chan any, func(), error) {
	path, err := keypath.Clean(path)
	if err != nil {
		return nil, nil, err
	}
	if err := s.startFeed(ctx); err != nil {
		return nil, nil, err
	}
	return s.hub.Subscribe(ctx, path)
}

// startFeed joins the change channel once. Subscribing before the first
// snapshot read means no change can fall between the two.
func (s *Store) startFeed(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubsub != nil {
		return nil
	}
	ps := s.client.Subscribe(context.Background(), s.channel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return unavailable("subscribe", err)
	}
	s.pubsub = ps
	go s.feed(ps)
	return nil
}

func (s *Store) feed(ps *redis.PubSub) {
	for msg := range ps.Channel() {
		s.hub.Notify(context.Background(), msg.Payload)
	}
	s.log.Debug("redis change feed stopped")
}

// Subscribers reports the number of live subscriptions.
func (s *Store) Subscribers() int {
	return s.hub.Len()
}

// Close stops the change feed and ends all subscriptions. The client stays open.
func (s *Store) Close() error {
	s.mu.Lock()
	ps := s.pubsub
	s.pubsub = nil
	s.mu.Unlock()
	s.hub.Close()
	if ps != nil {
		return ps.Close()
	}
	return nil
}
