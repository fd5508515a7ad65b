package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/ringdb/pkg/config"
	"github.com/cuemby/ringdb/pkg/log"
	"github.com/cuemby/ringdb/pkg/metrics"
	"github.com/cuemby/ringdb/pkg/node"
	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "run and inspect this ring node",
}

var nodeStartCmd = &cobra.Command{
	Use:   "start",
	Short: "start this node's listeners and join the gossip ring",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		n, err := node.New(cfg)
		if err != nil {
			return fmt.Errorf("initialize node: %w", err)
		}
		if err := n.Start(); err != nil {
			return fmt.Errorf("start node: %w", err)
		}

		if cfg.MetricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
					log.Logger.Warn().Err(err).Msg("metrics server stopped")
				}
			}()
		}

		if err := config.WatchSeeds(cfgPath, func(seeds []string) {
			log.Logger.Info().Strs("seeds", seeds).Msg("seed list reloaded")
		}); err != nil {
			log.Logger.Warn().Err(err).Msg("watch seed list")
		}

		log.Logger.Info().Str("node_id", cfg.NodeID).Msg("ringdb node started")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		log.Logger.Info().Msg("shutting down")
		n.Stop()
		return nil
	},
}

func init() {
	nodeStartCmd.Flags().String("config", "ringdb.toml", "path to this node's TOML configuration file")
	nodeCmd.AddCommand(nodeStartCmd)
}
