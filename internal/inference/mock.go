package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockService is a scripted Service for testing. Responses are
// returned in order; Handler, when set, takes precedence.
type MockService struct {
	mu sync.Mutex

	// Handler computes the response per request when set.
	Handler func(req Request) (json.RawMessage, error)

	// Responses are popped front-to-back when Handler is nil.
	Responses []json.RawMessage

	// Err is returned for every call when set (and Handler is nil).
	Err error

	// Requests records every call for assertions.
	Requests []Request
}

// NewMockService creates an empty mock.
func NewMockService() *MockService {
	return &MockService{}
}

// Infer returns the next scripted response.
func (m *MockService) Infer(ctx context.Context, req Request) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)

	if m.Handler != nil {
		return m.Handler(req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return nil, fmt.Errorf("mock inference: no scripted response for %s", req.SchemaName)
	}
	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return resp, nil
}

// CallCount returns the number of Infer calls made.
func (m *MockService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
