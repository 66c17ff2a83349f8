package tools

import (
	"context"

	"github.com/rgabriel/jmap-react/react"
)

// Reactor sends a reaction. The concrete *react.Service satisfies this.
type Reactor interface {
	React(ctx context.Context, req react.Request) (*react.Result, error)
}
