package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cuemby/ringdb/pkg/auth"
	"github.com/cuemby/ringdb/pkg/config"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "manage AUTH_RESPONSE credentials",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "create or replace a user's stored password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := auth.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open credential store: %w", err)
		}

		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			fmt.Print("Password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		return store.SetPassword(args[0], password)
	},
}

var userRemoveCmd = &cobra.Command{
	Use:   "remove <username>",
	Short: "delete a user's stored credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := auth.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open credential store: %w", err)
		}
		return store.RemoveUser(args[0])
	},
}

func init() {
	userCreateCmd.Flags().String("config", "ringdb.toml", "path to this node's TOML configuration file")
	userCreateCmd.Flags().String("password", "", "password to store (prompted on stdin if omitted)")
	userRemoveCmd.Flags().String("config", "ringdb.toml", "path to this node's TOML configuration file")
	userCmd.AddCommand(userCreateCmd, userRemoveCmd)
}
