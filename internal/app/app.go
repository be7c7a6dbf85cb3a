package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CodeLoader resolves a join code to its entity id.
type CodeLoader interface {
	LookupCode(ctx context.Context, code string) (string, error)
}

// CodeResolver is a CodeLoader that can drop entries, typically a cache.
type CodeResolver interface {
	CodeLoader
	Forget(code string)
}

// Services bundles the use cases exposed to the transports.
type Services struct {
	Surveys       *SurveyService
	Votes         *VoteService
	Winners       *WinnerService
	Contests      *ContestService
	Notifications *NotificationService
	Admins        *AdminService
}

type env struct {
	store     Store
	log       *zap.Logger
	now       func() time.Time
	intn      func(n int) int
	newID     func() string
	codeCache func(CodeLoader) CodeResolver
}

// Option customizes New.
type Option func(*env)

// WithClock replaces time.Now, for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(e *env) { e.now = now }
}

// WithRand replaces the random source used for codes and raffles. intn must be
// safe for concurrent use.
func WithRand(intn func(n int) int) Option {
	return func(e *env) { e.intn = intn }
}

// WithIDs replaces the push id generator.
func WithIDs(newID func() string) Option {
	return func(e *env) { e.newID = newID }
}

// WithCodeCache wraps join code lookups, e.g. with memory.NewCodeCache.
func WithCodeCache(wrap func(CodeLoader) CodeResolver) Option {
	return func(e *env) { e.codeCache = wrap }
}

// New wires every service on top of store.
func New(store Store, log *zap.Logger, opts ...Option) *Services {
	if log == nil {
		log = zap.NewNop()
	}
	e := &env{
		store: store,
		log:   log,
		now:   time.Now,
		intn:  rand.Intn,
		newID: pushID,
	}
	for _, opt := range opts {
		opt(e)
	}

	notifications := &NotificationService{env: e}
	surveys := newSurveyService(e)
	surveys.notifications = notifications
	return &Services{
		Surveys:       surveys,
		Votes:         &VoteService{env: e, surveys: surveys, notifications: notifications},
		Winners:       &WinnerService{env: e, surveys: surveys, notifications: notifications},
		Contests:      &ContestService{env: e, surveys: surveys, notifications: notifications},
		Notifications: notifications,
		Admins:        &AdminService{env: e},
	}
}

// pushID returns a time-ordered id, so sorting ids sorts by creation time.
func pushID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// watch adapts a raw store subscription into a typed stream. Snapshots that do
// not decode are logged and skipped.
func watch[T any](ctx context.Context, e *env, path string, decodeFn func(any) (T, error)) (<-chan T, func(), error) {
	raw, cancelRaw, err := e.store.Subscribe(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan T, 1)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			cancelRaw()
		})
	}

	go func() {
		defer close(out)
		for {
			select {
			case v, ok := <-raw:
				if !ok {
					return
				}
				decoded, err := decodeFn(v)
				if err != nil {
					e.log.Warn("dropping undecodable snapshot", zap.String("path", path), zap.Error(err))
					continue
				}
				select {
				case out <- decoded:
				case <-stop:
					return
				}
			case <-stop:
				return
			}
		}
	}()
	return out, cancel, nil
}
