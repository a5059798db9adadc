package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-ledger/internal/cli"
)

// Set by -ldflags at release time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseFormat(a.v.GetString("output"))
			if err != nil {
				return err
			}
			return cli.NewOutput(format, a.stdout).KV("version").
				Set("Version", version).
				Set("Commit", commit).
				Set("Built", buildDate).
				Set("Go", runtime.Version()).
				Set("Platform", runtime.GOOS+"/"+runtime.GOARCH).
				Render()
		},
	}
}
