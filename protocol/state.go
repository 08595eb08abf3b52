package protocol

import (
	"context"
	"fmt"

	"github.com/syncplane/syncplane/statestore"
	"github.com/syncplane/syncplane/utils"
)

// StateConfig selects the cursor store backend for a sync.
type StateConfig struct {
	Type     string                     `json:"type" validate:"required,oneof=memory file postgres mongo"`
	Path     string                     `json:"path,omitempty"`
	Postgres *statestore.PostgresConfig `json:"postgres,omitempty"`
	Mongo    *statestore.MongoConfig    `json:"mongo,omitempty"`
}

func (c *StateConfig) Validate() error {
	return utils.Validate(c)
}

func newStateStore(ctx context.Context) (statestore.Store, error) {
	if stateConfigPath == "" {
		return statestore.NewMemoryStore(), nil
	}

	config := &StateConfig{}
	if err := utils.UnmarshalFile(stateConfigPath, config); err != nil {
		return nil, fmt.Errorf("failed to read state config: %s", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state config: %s", err)
	}

	switch config.Type {
	case "memory":
		return statestore.NewMemoryStore(), nil
	case "file":
		if config.Path == "" {
			return nil, fmt.Errorf("state type file requires a path")
		}
		return statestore.NewFileStore(config.Path)
	case "postgres":
		if config.Postgres == nil {
			return nil, fmt.Errorf("state type postgres requires a postgres block")
		}
		return statestore.NewPostgresStore(ctx, config.Postgres)
	case "mongo":
		if config.Mongo == nil {
			return nil, fmt.Errorf("state type mongo requires a mongo block")
		}
		return statestore.NewMongoStore(ctx, config.Mongo)
	default:
		return nil, fmt.Errorf("unsupported state type [%s]", config.Type)
	}
}
