package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
	"live-survey-service/internal/domain"
	"live-survey-service/internal/infra/watch"
	"live-survey-service/internal/keypath"
)

// ChangeChannel is the LISTEN/NOTIFY channel carrying changed paths.
const ChangeChannel = "kv_changes"

// Store keeps the key-path tree in the kv_nodes table, one row per leaf.
// Mutations run in transactions that NOTIFY on commit; a dedicated
// connection LISTENs and refreshes local subscribers.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
	hub  *watch.Hub

	mu         sync.Mutex
	stopListen context.CancelFunc
	listenDone chan struct{}
}

func NewStore(pool *pgxpool.Pool, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{pool: pool, log: log}
	s.hub = watch.NewHub(s.Read, log)
	return s
}

func unavailable(op string, err error) error {
	return fmt.Errorf("postgres %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// subtreeRange bounds the paths strictly below path; '0' follows '/'.
func subtreeRange(path string) (string, string) {
	return path + "/", path + "0"
}

func (s *Store) Read(ctx context.Context, path string) (any, error) {
	path, err := keypath.Clean(path)
	if err != nil {
		return nil, err
	}
	var rows pgx.Rows
	if path == "" {
		rows, err = s.pool.Query(ctx, `SELECT path, value FROM kv_nodes`)
	} else {
		lo, hi := subtreeRange(path)
		rows, err = s.pool.Query(ctx,
			`SELECT path, value FROM kv_nodes WHERE path = $1 OR (path >= $2 AND path < $3)`,
			path, lo, hi)
	}
	if err != nil {
		return nil, unavailable("read", err)
	}
	defer rows.Close()

	leaves := make(map[string][]byte)
	for rows.Next() {
		var p string
		var raw []byte
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, unavailable("read", err)
		}
		leaves[p] = raw
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read", err)
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
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, p := range cleared {
			if err := clearTx(ctx, tx, p); err != nil {
				return err
			}
		}
		if err := insertTx(ctx, tx, leaves); err != nil {
			return err
		}
		return notifyTx(ctx, tx, changed)
	})
	if err != nil {
		return unavailable("write", err)
	}
	s.log.Debug("postgres write", zap.String("path", changed), zap.Int("leaves", len(leaves)))
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// clearTx removes path, its subtree and any ancestor that is a leaf.
func clearTx(ctx context.Context, tx pgx.Tx, path string) error {
	lo, hi := subtreeRange(path)
	doomed := append(keypath.Ancestors(path), path)
	_, err := tx.Exec(ctx,
		`DELETE FROM kv_nodes WHERE path = ANY($1) OR (path >= $2 AND path < $3)`,
		doomed, lo, hi)
	return err
}

func insertTx(ctx context.Context, tx pgx.Tx, leaves map[string][]byte) error {
	if len(leaves) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for p, raw := range leaves {
		batch.Queue(
			`INSERT INTO kv_nodes (path, value) VALUES ($1, $2::jsonb)
			 ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value`,
			p, string(raw))
	}
	br := tx.SendBatch(ctx, batch)
	for range leaves {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func notifyTx(ctx context.Context, tx pgx.Tx, path string) error {
	_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, ChangeChannel, path)
	return err
}

// Increment adds delta in a single upsert. The counter must be a leaf.
func (s *Store) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	path, err := keypath.Clean(path)
	if err != nil {
		return 0, err
	}
	if path == "" {
		return 0, fmt.Errorf("%w: cannot increment the root", domain.ErrInvalidPath)
	}
	var total int64
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO kv_nodes (path, value) VALUES ($1, to_jsonb($2::bigint))
			 ON CONFLICT (path) DO UPDATE
			   SET value = to_jsonb((kv_nodes.value #>> '{}')::bigint + $2::bigint)
			 RETURNING (value #>> '{}')::bigint`,
			path, delta)
		if err := row.Scan(&total); err != nil {
			return err
		}
		return notifyTx(ctx, tx, path)
	})
	if err != nil {
		return 0, unavailable("increment", err)
	}
	return total, nil
}

// errOccupied aborts a Create transaction that lost.
var errOccupied = errors.New("path occupied")

// Create inserts value unless something exists at, above or below path.
// Creates on the same path are serialized by a transaction-scoped advisory lock.
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

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, path); err != nil {
			return err
		}
		lo, hi := subtreeRange(path)
		var occupied bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM kv_nodes WHERE path = ANY($1) OR (path >= $2 AND path < $3))`,
			append(keypath.Ancestors(path), path), lo, hi).Scan(&occupied)
		if err != nil {
			return err
		}
		if occupied {
			return errOccupied
		}
		if err := insertTx(ctx, tx, leaves); err != nil {
			return err
		}
		return notifyTx(ctx, tx, path)
	})
	if errors.Is(err, errOccupied) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("create", err)
	}
	return true, nil
}

// Subscribe streams snapshots of path, starting with the current one.
func (s *Store) Subscribe(ctx context.Context, path string) (<-chan any, func(), error) {
	path, err := keypath.Clean(path)
	if err != nil {
		return nil, nil, err
	}
	if err := s.startListener(ctx); err != nil {
		return nil, nil, err
	}
	return s.hub.Subscribe(ctx, path)
}

// startListener dedicates one pooled connection to LISTEN, once.
func (s *Store) startListener(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopListen != nil {
		return nil
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return unavailable("listen", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		conn.Release()
		return unavailable("listen", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s.stopListen = cancel
	s.listenDone = make(chan struct{})
	go s.listen(listenCtx, conn, s.listenDone)
	return nil
}

func (s *Store) listen(ctx context.Context, conn *pgxpool.Conn, done chan struct{}) {
	defer close(done)
	defer conn.Release()
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Error("change listener stopped", zap.Error(err))
				s.resetListener(done)
			}
			return
		}
		s.hub.Notify(ctx, n.Payload)
	}
}

// resetListener lets the next Subscribe start a fresh listener after a failure.
func (s *Store) resetListener(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listenDone == done {
		s.stopListen()
		s.stopListen, s.listenDone = nil, nil
	}
}

// Subscribers reports the number of live subscriptions.
func (s *Store) Subscribers() int {
	return s.hub.Len()
}

// Close stops the listener and ends all subscriptions. The pool stays open.
func (s *Store) Close() {
	s.mu.Lock()
	stop, done := s.stopListen, s.listenDone
	s.stopListen, s.listenDone = nil, nil
	s.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
	s.hub.Close()
}
