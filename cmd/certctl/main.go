package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"giftspa/server/internal/config"
	"giftspa/server/internal/database"
)

var Version = "dev"

// settings флаги перекрывают переменные окружения, те перекрывают config.Load()
var settings = viper.New()

func main() {
	if err := godotenv.Load(); err == nil {
		log.Printf("✅ Переменные окружения загружены из .env файла")
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:          "certctl",
		Short:        "Администрирование витрины подарочных сертификатов",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("database-url", cfg.DatabaseURL, "PostgreSQL connection string")
	rootCmd.PersistentFlags().String("redis-url", cfg.RedisURL, "Redis для сброса кэша каталога (пусто = не сбрасывать)")

	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	_ = settings.BindPFlag("database-url", rootCmd.PersistentFlags().Lookup("database-url"))
	_ = settings.BindPFlag("redis-url", rootCmd.PersistentFlags().Lookup("redis-url"))

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(syncCompaniesCmd())
	rootCmd.AddCommand(loadOrdersCmd())

	return rootCmd
}

func openDB() (*gorm.DB, error) {
	db, err := database.ConnectPostgres(settings.GetString("database-url"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return db, nil
}
