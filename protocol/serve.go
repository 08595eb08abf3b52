package protocol

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"github.com/syncplane/syncplane/transport"
	"github.com/syncplane/syncplane/utils/logger"
	"google.golang.org/grpc"
)

// serveCmd exposes the local source as a remote plugin. Engines point
// `sync --source-addr` at it; cursors travel in the sync request and the
// terminal summary frame, so the server itself stays stateless.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve command",
	RunE: func(cmd *cobra.Command, _ []string) error {
		listener, err := net.Listen("tcp", serveAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %s", serveAddr, err)
		}

		server := grpc.NewServer()
		transport.NewServer(transport.NewInProcess(plugin)).Register(server)

		go func() {
			<-cmd.Context().Done()
			server.GracefulStop()
		}()

		logger.Infof("plugin %s %s serving on %s", plugin.Name(), plugin.Version(), listener.Addr())
		return server.Serve(listener)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "", ":7774", "(Optional) Listen address for the plugin server")
}
