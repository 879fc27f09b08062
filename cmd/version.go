package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hollyvale/mqttdash/internal/build"
)

// NewCmdVersion returns the version command.
func NewCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Print version information",
		GroupID: "commands",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s", build.Package(), build.Version())
			if t := build.BuildTime(); t != "" {
				cmd.Printf(" (built %s)", t)
			}
			cmd.Println()
		},

		DisableFlagsInUseLine: true,
	}
}
