package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd(version, commit, date string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			platform := runtime.GOOS + "/" + runtime.GOARCH

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]string{
					"version":  version,
					"commit":   commit,
					"built":    date,
					"go":       runtime.Version(),
					"platform": platform,
				})
			}

			fmt.Fprintf(out, "portal %s (commit %s, built %s)\n", version, commit, date)
			fmt.Fprintf(out, "%s %s\n", runtime.Version(), platform)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	return cmd
}
