/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/simaland/userapi/internal/auth"
	"github.com/simaland/userapi/internal/db"
	"github.com/simaland/userapi/internal/logutil"
	"github.com/simaland/userapi/internal/services"
	"github.com/simaland/userapi/internal/store"
	"github.com/spf13/cobra"
)

var adminInput services.UserInput

// createAdminCmd bootstraps the first administrator, which the HTTP API
// cannot do on its own since every write needs an admin session.
var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an unblocked admin user directly in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()
		ctx := logutil.WithLogger(cmd.Context(), logger)

		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		hasher := auth.NewHasher([]byte(cfg.Auth.HashSalt), cfg.Auth.HashIterations)
		users := services.NewUserService(store.NewUserRepository(conn), hasher, nil, nil)

		blocked, isAdmin := false, true
		in := adminInput
		in.Blocked, in.IsAdmin = &blocked, &isAdmin

		user, err := users.Create(ctx, auth.Context{IsAdmin: true}, in)
		if err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		logger.Info().Int("id", user.ID).Str("login", user.Login).Msg("admin created")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)

	flags := createAdminCmd.Flags()
	flags.StringVar(&adminInput.Login, "login", "admin", "login of the admin")
	flags.StringVar(&adminInput.Password, "password", "", "password of the admin")
	flags.StringVar(&adminInput.FirstName, "first-name", "admin", "first name")
	flags.StringVar(&adminInput.LastName, "last-name", "admin", "last name")
	flags.StringVar(&adminInput.BirthDate, "birth-date", "1970-01-01", "birth date as YYYY-MM-DD")
	_ = createAdminCmd.MarkFlagRequired("password")
}
