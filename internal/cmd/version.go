package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/goalsmith/goalsmith/internal/config"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for full details including Crucible and Go versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !extended {
			_, err := fmt.Fprintf(out, "%s %s\n", config.AppName, versionInfo.Version)
			return err
		}

		_, err := fmt.Fprint(out, ascii.DrawBox(extendedVersion(), 0))
		return err
	},
}

func extendedVersion() string {
	deps := crucible.GetVersion()
	lines := []string{
		fmt.Sprintf("%s %s", config.AppName, versionInfo.Version),
		"",
		fmt.Sprintf("Commit:   %s", versionInfo.Commit),
		fmt.Sprintf("Built:    %s", versionInfo.BuildDate),
		fmt.Sprintf("Go:       %s", runtime.Version()),
		fmt.Sprintf("Gofulmen: %s", deps.Gofulmen),
		fmt.Sprintf("Crucible: %s", deps.Crucible),
	}
	return strings.Join(lines, "\n")
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
