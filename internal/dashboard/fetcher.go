package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FetchState is the lifecycle of one reading.
type FetchState string

const (
	StateIdle    FetchState = "idle"
	StateLoading FetchState = "loading"
	StateSuccess FetchState = "success"
	StateError   FetchState = "error"
)

// Reading is a point-in-time copy of a fetcher's state.
type Reading[T any] struct {
	Data      *T         `json:"data"`
	State     FetchState `json:"state"`
	Error     string     `json:"error,omitempty"`
	IsLoading bool       `json:"isLoading"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// FetchFunc loads one reading. Returning (nil, nil) means "no data", which is
// not a failure.
type FetchFunc[T any] func(ctx context.Context) (*T, error)

// Fetcher holds one kind of reading and its fetch state.
//
// Every fetch takes a sequence token; only the most recently issued fetch may
// commit, so a slow stale response can never overwrite a fresher one. A failed
// fetch keeps the previous good data.
type Fetcher[T any] struct {
	name   string
	fetch  FetchFunc[T]
	logger *slog.Logger
	clock  clockwork.Clock

	mu        sync.Mutex
	seq       uint64
	data      *T
	state     FetchState
	err       string
	updatedAt time.Time
}

// NewFetcher creates an idle fetcher.
func NewFetcher[T any](name string, fetch FetchFunc[T], logger *slog.Logger) *Fetcher[T] {
	return &Fetcher[T]{
		name:   name,
		fetch:  fetch,
		logger: logger,
		clock:  clockwork.NewRealClock(),
		state:  StateIdle,
	}
}

// Fetch runs the fetch function and commits its result if no newer fetch was
// started meanwhile. It returns the fetch's own error; a superseded result is
// dropped but its error is still reported to the caller.
func (f *Fetcher[T]) Fetch(ctx context.Context) error {
	f.mu.Lock()
	f.seq++
	token := f.seq
	fetch := f.fetch
	f.state = StateLoading
	f.err = ""
	f.mu.Unlock()

	data, err := fetch(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()

	if token != f.seq {
		f.logger.Debug("discarding superseded response", "reading", f.name, "token", token, "latest", f.seq)
		return err
	}

	if err != nil {
		f.state = StateError
		f.err = err.Error()
		f.logger.Warn("fetch failed", "reading", f.name, "error", err)
		return err
	}

	f.data = data
	f.state = StateSuccess
	f.updatedAt = f.clock.Now()
	return nil
}

// Refetch re-runs the fetch regardless of any auto-fetch policy.
// It is safe to call while a fetch is in flight.
func (f *Fetcher[T]) Refetch(ctx context.Context) error {
	return f.Fetch(ctx)
}

// Snapshot returns a copy of the current state.
func (f *Fetcher[T]) Snapshot() Reading[T] {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Reading[T]{
		Data:      f.data,
		State:     f.state,
		Error:     f.err,
		IsLoading: f.state == StateLoading,
		UpdatedAt: f.updatedAt,
	}
}
