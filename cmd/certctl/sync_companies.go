package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"giftspa/server/internal/database"
	"giftspa/server/internal/models"
	"giftspa/server/internal/services"
	"giftspa/server/internal/utils"
)

func syncCompaniesCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync-companies [file.yaml]",
		Short: "Загрузить филиалы, алиасы и услуги из YAML",
		Long: `Upsert филиалов из YAML файла. Секреты платежного шлюза и WhatsApp
можно передавать через ${ENV_VAR}. После загрузки кэш каталога сбрасывается
на всех инстансах через Redis Pub/Sub.

Examples:
  certctl sync-companies companies.yaml
  certctl sync-companies companies.yaml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			file, err := services.ParseCompanySyncFile(data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				for _, c := range file.Companies {
					fmt.Fprintf(out, "%s  %s  (%d алиасов, %d услуг)\n", c.ID, c.Label, len(c.Aliases), len(c.Procedures))
				}
				fmt.Fprintln(out, "Dry run - no changes made")
				return nil
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)
			if err := models.AutoMigrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			var redisUtil *utils.RedisClient
			if redisURL := settings.GetString("redis-url"); redisURL != "" {
				client, err := database.ConnectRedis(redisURL, nil, "")
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "⚠️ Redis недоступен, кэш каталога не сброшен: %v\n", err)
				} else {
					defer database.CloseRedis(client)
					redisUtil = utils.NewRedisClient(client)
				}
			}

			syncer := services.NewCompanySyncService(db, services.NewCatalogCache(db, redisUtil))
			result, err := syncer.Sync(context.Background(), file)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✅ Синхронизировано: филиалов %d, алиасов %d, услуг %d\n",
				result.Companies, result.Aliases, result.Procedures)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "показать, что будет загружено, без изменений")
	return cmd
}
