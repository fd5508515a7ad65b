package main

import (
	"fmt"

	"github.com/cuemby/ringdb/pkg/config"
	"github.com/cuemby/ringdb/pkg/node"
	"github.com/spf13/cobra"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "manage this node's membership in a ring",
}

var clusterBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "start a brand-new single-node cluster at ring position 1",
	Long: `bootstrap gives this node ring position 1 and marks it Active and a
seed, with no peers. Run this exactly once, on the first node of a new
cluster; every other node joins it with "ringdb cluster join".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := node.Initialize(cfg); err != nil {
			return err
		}
		fmt.Printf("node %q bootstrapped at position 1\n", cfg.NodeID)
		return nil
	},
}

var clusterJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "join an existing cluster through a seed node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		seed, _ := cmd.Flags().GetString("seed")
		if seed == "" {
			return fmt.Errorf("--seed is required (host:port of an existing node's client port)")
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := node.Join(cfg, seed); err != nil {
			return err
		}
		fmt.Printf("node %q joined via seed %s; now Booting, awaiting rebalance\n", cfg.NodeID, seed)
		return nil
	},
}

func init() {
	clusterBootstrapCmd.Flags().String("config", "ringdb.toml", "path to this node's TOML configuration file")
	clusterJoinCmd.Flags().String("config", "ringdb.toml", "path to this node's TOML configuration file")
	clusterJoinCmd.Flags().String("seed", "", "a seed node's base address, e.g. 10.0.0.1:9042")
	clusterCmd.AddCommand(clusterBootstrapCmd, clusterJoinCmd)
}
