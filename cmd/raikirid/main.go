// Command raikirid is the raikiri runtime daemon: the Gateway HTTP front
// door (§4.8) plus a thin operator CLI for driving a running daemon
// (put-component, invoke, update-secrets, rotate-key), in the same
// single-binary cobra shape the ancestry's cmd/nova uses.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "raikirid",
		Short: "raikiri multi-tenant component runtime",
		Long:  "raikirid hosts sandboxed, tenant-owned components behind a single HTTP front door, compiling and caching them ahead of time and supplying per-tenant encrypted secrets at invocation.",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a JSON config file (optional, flags/env override)")

	root.AddCommand(
		serveCmd(),
		putComponentCmd(),
		invokeCmd(),
		updateSecretsCmd(),
		rotateKeyCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
