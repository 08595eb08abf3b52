package protocol

import (
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/syncplane/syncplane/destination"
	"github.com/syncplane/syncplane/utils"
)

// specCmd describes the plugin and its surrounding engine without touching
// the source: name, version and the writer/state backends this build knows.
var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "spec command",
	RunE: func(_ *cobra.Command, _ []string) error {
		destinations := make([]string, 0, len(destination.RegisteredWriters))
		for writerType := range destination.RegisteredWriters {
			destinations = append(destinations, writerType)
		}
		sort.Strings(destinations)

		spec := map[string]any{
			"name":           plugin.Name(),
			"version":        plugin.Version(),
			"destinations":   destinations,
			"state_backends": []string{"memory", "file", "postgres", "mongo"},
		}

		return emit(spec)
	},
}

// emit writes command output to --output when set, stdout otherwise.
func emit(content any) error {
	if outputPath != "" {
		return utils.WriteFile(outputPath, content)
	}
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %s", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
