/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/simaland/userapi/internal/db"
	"github.com/simaland/userapi/internal/logutil"
	"github.com/simaland/userapi/internal/services"
	"github.com/simaland/userapi/internal/storage"
	"github.com/simaland/userapi/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportList bool
	exportGet  string
)

// exportCmd uploads a snapshot of the user list to object storage.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Upload a JSON snapshot of all users to object storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()
		ctx := logutil.WithLogger(cmd.Context(), logger)

		objects, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}

		if exportList {
			snapshots, err := objects.List(ctx, services.ExportPrefix)
			if err != nil {
				return fmt.Errorf("list exports: %w", err)
			}
			for _, obj := range snapshots {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", obj.Key, obj.Size, obj.LastModified.UTC().Format(time.RFC3339))
			}
			return nil
		}

		if exportGet != "" {
			return services.NewExportService(nil, objects).ReadSnapshot(ctx, exportGet, cmd.OutOrStdout())
		}

		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		key, err := services.NewExportService(store.NewUserRepository(conn), objects).ExportUsers(ctx)
		if err != nil {
			return err
		}
		logger.Info().Str("bucket", objects.Bucket()).Str("key", key).Msg("users exported")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().BoolVar(&exportList, "list", false, "list existing snapshots instead of writing one")
	exportCmd.Flags().StringVar(&exportGet, "get", "", "print the snapshot stored under this key")
}
