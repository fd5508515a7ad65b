// Command ringdb runs one ring node: the wire-protocol front end, the
// storage/replication stack, and the anti-entropy layer spec.md
// describes, wired together by pkg/node.
package main

import (
	"fmt"
	"os"

	"github.com/cuemby/ringdb/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ringdb",
	Short:   "ringdb - a peer-to-peer, Cassandra-compatible database node",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ringdb version %s\ncommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs as JSON")

	cobra.OnInitialize(func() {
		level, _ := rootCmd.PersistentFlags().GetString("log-level")
		jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
	})

	rootCmd.AddCommand(nodeCmd, clusterCmd, userCmd)
}
