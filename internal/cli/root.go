// Package cli wires the lightnote command line.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main with the values injected at build time.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lightnote",
		Short:         "LightNote AI proposal assistant API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./lightnote.yaml or ./config/lightnote.yaml)")

	root.AddCommand(newServeCmd(), newPoliciesCmd(), newVersionCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
