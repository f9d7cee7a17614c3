package models

import (
	"context"
	"sync"

	"github.com/Iron-Ham/teamrun/internal/errors"
)

// ErrReplayExhausted is returned once every scripted completion was served.
var ErrReplayExhausted = errors.New("replay: no responses left")

// Replay serves scripted completions in order. It is useful for offline
// runs and tests.
type Replay struct {
	model string

	mu        sync.Mutex
	responses []Completion
	next      int
	requests  []Request
	closed    bool
}

var _ Client = (*Replay)(nil)

// NewReplay returns a client that answers with responses in order.
func NewReplay(model string, responses ...Completion) *Replay {
	if model == "" {
		model = "replay"
	}
	return &Replay{model: model, responses: responses}
}

func (r *Replay) Model() string { return r.model }

func (r *Replay) Create(ctx context.Context, req Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New("replay: client closed")
	}
	r.requests = append(r.requests, req)
	if r.next >= len(r.responses) {
		return nil, ErrReplayExhausted
	}
	c := r.responses[r.next]
	r.next++
	return &c, nil
}

// Requests returns the requests received so far.
func (r *Replay) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.requests...)
}

func (r *Replay) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (r *Replay) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
