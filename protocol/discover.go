package protocol

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/syncplane/syncplane/transport"
	"github.com/syncplane/syncplane/types"
	"github.com/syncplane/syncplane/utils/logger"
)

// discoverCmd negotiates the table schema and dumps it as JSON, either from
// the local source or from a remote plugin over gRPC.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "discover command",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		trans, err := newTransport()
		if err != nil {
			return err
		}
		defer trans.Close(ctx)

		defs, err := trans.NegotiateSchema(ctx)
		if err != nil {
			return err
		}
		if len(defs) == 0 {
			return errors.New("no tables found in source")
		}

		logger.Infof("discovered %d tables", len(defs))
		return emit(map[string][]*types.TableDef{"tables": defs})
	},
}

// newTransport picks the sync boundary: remote plugin when --source-addr is
// set, the in-process source otherwise.
func newTransport() (transport.Transport, error) {
	if sourceAddr != "" {
		return transport.Dial(sourceAddr)
	}
	return transport.NewInProcess(plugin, schedulerOptions()...), nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(cmd.Context(), time.Duration(timeout)*time.Second)
	}
	return context.WithCancel(cmd.Context())
}
