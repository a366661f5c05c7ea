package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"giftspa/server/internal/database"
	"giftspa/server/internal/models"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Создать или обновить схему БД",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)

			if err := models.AutoMigrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Database migrations completed")
			return nil
		},
	}
}
