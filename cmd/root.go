/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/simaland/userapi/config"
	"github.com/simaland/userapi/internal/logutil"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "userapi",
	Short: "User management API with cookie sessions",
	Long: `userapi serves login/logout and permission-gated user management
over HTTP, and ships the maintenance commands around it.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, zerolog.Logger) {
	cfg := config.LoadConfig()
	return cfg, logutil.New(cfg.Log)
}
