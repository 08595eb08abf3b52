package scheduler

import (
	"context"

	"github.com/syncplane/syncplane/schema"
	"github.com/syncplane/syncplane/types"
)

// Source is what an integration plugin implements: a named table registry
// plus a root execution context for multiplexer expansion.
type Source interface {
	Name() string
	Version() string
	Registry() *schema.Registry
	// NewClient returns the root client; multiplexed tables expand it into
	// per-client contexts, all other tables use it directly.
	NewClient(ctx context.Context) (types.Client, error)
}

// StaticClient is a minimal Client for plugins whose execution context is
// just an identifier.
type StaticClient struct {
	Name string
	Meta any
}

func (c *StaticClient) ID() string {
	return c.Name
}
