package prediction

import (
	"context"
	"sync"

	"github.com/kilianp07/eta/core/pipeline"
)

// MockEngine returns a fixed estimate and keeps the requests it received.
type MockEngine struct {
	Minutes float64
	Err     error

	mu       sync.Mutex
	Requests []Request
}

// Predict records req and returns the configured result.
func (m *MockEngine) Predict(_ context.Context, req Request) (Response, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.Err != nil {
		return Response{RequestID: req.RequestID}, m.Err
	}
	return Response{RequestID: req.RequestID, Minutes: m.Minutes, Display: pipeline.FormatMinutes(m.Minutes)}, nil
}

// Received returns a copy of the recorded requests.
func (m *MockEngine) Received() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.Requests...)
}
