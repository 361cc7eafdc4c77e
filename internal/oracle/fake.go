package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Stub is a deterministic in-memory provider for tests and offline runs.
// Responses are keyed by stage tag; unmatched stages fall back to Default.
type Stub struct {
	StubName  string
	Responses map[string]json.RawMessage
	Default   json.RawMessage
	Err       error // when set, every call fails with this error

	mu    sync.Mutex
	calls []Request
}

func (s *Stub) Name() string {
	if s.StubName != "" {
		return s.StubName
	}
	return "stub"
}

func (s *Stub) Complete(_ context.Context, req Request) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	if resp, ok := s.Responses[req.Stage]; ok {
		return resp, nil
	}
	if s.Default != nil {
		return s.Default, nil
	}
	return nil, fmt.Errorf("stub: no response for stage %q", req.Stage)
}

// Calls returns a copy of the recorded requests.
func (s *Stub) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}
