package tools

import (
	"context"
	"fmt"

	"github.com/rgabriel/jmap-react/react"
)

// MockReactor implements Reactor for testing.
type MockReactor struct {
	// Return values
	Result *react.Result

	// Error injection
	Err error

	// Call tracking
	LastRequest react.Request
	CallCount   int
}

func (m *MockReactor) React(ctx context.Context, req react.Request) (*react.Result, error) {
	m.LastRequest = req
	m.CallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result == nil {
		return &react.Result{}, nil
	}
	return m.Result, nil
}

// newErrMock returns a mock with an error pre-configured
func newErrMock(msg string) *MockReactor {
	return &MockReactor{Err: fmt.Errorf("%s", msg)}
}
