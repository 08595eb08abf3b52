package destination

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/syncplane/syncplane/utils"
)

// WriterConfig is the serialized destination selection: a registered type
// plus its type-specific config blob.
type WriterConfig struct {
	Type   string          `json:"type" validate:"required"`
	Config json.RawMessage `json:"config,omitempty"`
}

func (c *WriterConfig) Validate() error {
	return utils.Validate(c)
}

// RegisteredWriters maps destination types to factories. Writer packages
// register themselves in init, binaries pick them up with a blank import.
var RegisteredWriters = map[string]func(raw json.RawMessage) (NewWriterFunc, error){}

// NewPool resolves the configured writer type and builds a pool around its
// factory.
func NewPool(ctx context.Context, config *WriterConfig) (*WriterPool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid destination config: %s", err)
	}

	factory, found := RegisteredWriters[config.Type]
	if !found {
		return nil, fmt.Errorf("invalid destination type has been passed [%s]", config.Type)
	}

	newWriter, err := factory(config.Config)
	if err != nil {
		return nil, err
	}
	return NewWriterPool(ctx, newWriter), nil
}
