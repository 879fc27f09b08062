// Package cmd implements the mqttdash command line interface.
package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/hollyvale/mqttdash/internal/build"
)

// CleanupFunc is run after the invoked command returns.
type CleanupFunc func()

var cleanup []CleanupFunc

// AddCleanup registers f to run when the command finishes.
func AddCleanup(f CleanupFunc) {
	cleanup = append(cleanup, f)
}

var rootCmd = &cobra.Command{
	Use:     "mqttdash",
	Short:   "MQTT broker dashboard, Redis bridge, and certificate tooling",
	Version: build.Version(),
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		for _, f := range cleanup {
			f()
		}
	},
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "commands", Title: "Commands:"},
	)

	rootCmd.AddCommand(
		NewCmdServe(),
		NewCmdBridge(),
		NewCmdCert(),
		NewCmdVersion(),
	)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// Error prints err and exits with its code.
func Error(err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Code != 0 {
			rootCmd.PrintErrln("Error:", err)
		}

		os.Exit(exitErr.Code)
	}

	rootCmd.PrintErrln("Error:", err)
	os.Exit(1)
}
