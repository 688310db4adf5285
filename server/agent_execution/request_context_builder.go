// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agent_execution

import (
	"context"

	"github.com/go-a2a/a2a-runtime"
)

// RequestContextBuilder builds the [RequestContext] handed to an
// [AgentExecutor].
type RequestContextBuilder interface {
	// Build returns the request context for params. taskID and contextID may
	// be empty, in which case new ones are generated. current is the existing
	// task the request continues, or nil.
	Build(ctx context.Context, params *a2a.MessageSendParams, taskID, contextID string, current *a2a.Task) (*RequestContext, error)
}
