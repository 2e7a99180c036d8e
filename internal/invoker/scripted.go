package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Scripted is an in-process invoker whose per-stage behavior is set up
// front. It backs tests and dry runs: each stage either answers with a
// canned result, sleeps past its deadline, or fails with an error.
type Scripted struct {
	mu      sync.Mutex
	results map[string]*Result
	errs    map[string]error
	delays  map[string]time.Duration
	calls   []string
}

// NewScripted creates a scripted invoker with no behaviors registered.
// Unregistered stages succeed with an empty payload.
func NewScripted() *Scripted {
	return &Scripted{
		results: make(map[string]*Result),
		errs:    make(map[string]error),
		delays:  make(map[string]time.Duration),
	}
}

// Succeed scripts a stage to answer successfully with the payload.
func (s *Scripted) Succeed(stage string, payload json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[stage] = &Result{Status: StatusSucceeded, Payload: payload}
}

// Fail scripts a stage to answer with a failed result.
func (s *Scripted) Fail(stage, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[stage] = &Result{Status: StatusFailed, Error: reason}
}

// Err scripts a stage to return a transport-level error.
func (s *Scripted) Err(stage string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[stage] = err
}

// Delay scripts a stage to sleep before answering, so deadline handling
// can be exercised.
func (s *Scripted) Delay(stage string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[stage] = d
}

// Calls returns the order in which stages were invoked.
func (s *Scripted) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// Invoke implements Invoker.
func (s *Scripted) Invoke(ctx context.Context, req *Request) (*Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req.Stage)
	delay := s.delays[req.Stage]
	err := s.errs[req.Stage]
	result := s.results[req.Stage]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: stage %s: %v", ErrTimeout, req.Stage, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	return &Result{Status: StatusSucceeded, Payload: json.RawMessage(`{}`)}, nil
}
