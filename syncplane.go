package syncplane

import (
	"os"

	_ "github.com/syncplane/syncplane/destination/local" // registering local json-lines writer
	"github.com/syncplane/syncplane/protocol"
	"github.com/syncplane/syncplane/scheduler"
	"github.com/syncplane/syncplane/utils/logger"
)

// RegisterSource turns a Source into a plugin binary: it wires the source
// into the shared command tree and executes it.
func RegisterSource(source scheduler.Source) {
	err := protocol.CreateRootCommand(source).Execute()
	if err != nil {
		logger.Fatal(err)
	}

	os.Exit(0)
}
