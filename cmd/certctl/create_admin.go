package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"giftspa/server/internal/database"
	"giftspa/server/internal/models"
	"giftspa/server/internal/services"
)

func createAdminCmd() *cobra.Command {
	var (
		email     string
		password  string
		role      string
		companyID string
	)

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Создать пользователя админки",
		Long: `Создает пользователя админки с bcrypt паролем.

Роли: superadmin, admin, manager. Менеджеру обязателен --company.

Examples:
  certctl create-admin --email owner@spa.kz --password secret123 --role superadmin
  certctl create-admin --email m@spa.kz --password secret123 --role manager --company <uuid>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = settings.GetString("admin-password")
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)

			if err := models.AutoMigrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			// Секрет JWT здесь не нужен, токены не выпускаются
			auth := services.NewAuthService(db, "")
			user, err := auth.CreateAdmin(context.Background(), email, password, role, companyID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Пользователь %s (%s) создан: %s\n", user.Email, user.Role, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email администратора")
	cmd.Flags().StringVar(&password, "password", "", "пароль (или ADMIN_PASSWORD)")
	cmd.Flags().StringVar(&role, "role", models.RoleAdmin, "роль: superadmin, admin, manager")
	cmd.Flags().StringVar(&companyID, "company", "", "ID филиала (для manager)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
