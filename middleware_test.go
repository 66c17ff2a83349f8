package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func makeRequest(toolName string) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name: toolName,
		},
	}
}

// slowHandler waits for d or for the context, whichever comes first.
func slowHandler(d time.Duration) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
			return &mcp.CallToolResult{}, nil
		}
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("handler completes in time", func(t *testing.T) {
		handler := timeoutMiddleware(time.Second)(slowHandler(0))

		result, err := handler(context.Background(), makeRequest("react_to_thread"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result == nil {
			t.Fatal("expected non-nil result")
		}
	})

	t.Run("handler exceeds timeout", func(t *testing.T) {
		handler := timeoutMiddleware(10 * time.Millisecond)(slowHandler(time.Second))

		_, err := handler(context.Background(), makeRequest("react_to_thread"))
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected DeadlineExceeded, got: %v", err)
		}
	})

	t.Run("handler sees a deadline", func(t *testing.T) {
		handler := timeoutMiddleware(time.Second)(func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("expected context deadline")
			}
			return &mcp.CallToolResult{}, nil
		})
		if _, err := handler(context.Background(), makeRequest("react_to_thread")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		handler     server.ToolHandlerFunc
		wantErr     bool
		wantIsError bool
		wantNil     bool
	}{
		{
			name: "successful result",
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return &mcp.CallToolResult{}, nil
			},
		},
		{
			name: "handler error",
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return nil, errors.New("handler failed")
			},
			wantErr: true,
			wantNil: true,
		},
		{
			name: "result with IsError",
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return &mcp.CallToolResult{IsError: true}, nil
			},
			wantIsError: true,
		},
		{
			name: "nil result",
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return nil, nil
			},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := loggingMiddleware()(tt.handler)(context.Background(), makeRequest("react_to_thread"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (result == nil) != tt.wantNil {
				t.Fatalf("result = %v, wantNil %v", result, tt.wantNil)
			}
			if result != nil && result.IsError != tt.wantIsError {
				t.Errorf("IsError = %v, want %v", result.IsError, tt.wantIsError)
			}
		})
	}
}

func TestComposedMiddleware(t *testing.T) {
	// Match real registration order: logging wraps timeout wraps handler
	compose := func(timeout time.Duration, h server.ToolHandlerFunc) server.ToolHandlerFunc {
		return loggingMiddleware()(timeoutMiddleware(timeout)(h))
	}

	t.Run("timeout inside logging", func(t *testing.T) {
		result, err := compose(100*time.Millisecond, slowHandler(0))(context.Background(), makeRequest("react_to_thread"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result == nil {
			t.Fatal("expected non-nil result")
		}
	})

	t.Run("composed timeout triggers", func(t *testing.T) {
		_, err := compose(10*time.Millisecond, slowHandler(time.Second))(context.Background(), makeRequest("react_to_thread"))
		if err == nil {
			t.Fatal("expected timeout error")
		}
	})
}
