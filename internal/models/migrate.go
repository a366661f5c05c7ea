package models

import (
	"log"

	"gorm.io/gorm"
)

// AutoMigrate создает таблицы в БД. Порядок важен: справочники раньше заказов
func AutoMigrate(db *gorm.DB) error {
	tables := []struct {
		name  string
		model interface{}
	}{
		{"Company", &Company{}},
		{"CompanyAlias", &CompanyAlias{}},
		{"Template", &Template{}},
		{"SpaProcedure", &SpaProcedure{}},
		{"Client", &Client{}},
		{"UtmTag", &UtmTag{}},
		{"UtmVisit", &UtmVisit{}},
		{"Certificate", &Certificate{}},
		{"Order", &Order{}},
		{"Payment", &Payment{}},
		{"OrderEvent", &OrderEvent{}},
		{"AdminUser", &AdminUser{}},
	}

	for _, t := range tables {
		if err := db.AutoMigrate(t.model); err != nil {
			log.Printf("❌ AutoMigrate для %s failed: %v", t.name, err)
			return err
		}
	}

	if db.Dialector.Name() == "postgres" {
		// Поиск платежа по ID провайдера в callback'е
		if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_provider_tx
			ON payments (provider, transaction_id) WHERE transaction_id <> ''`).Error; err != nil {
			log.Printf("⚠️ Не удалось создать индекс idx_payments_provider_tx: %v", err)
		}
	}

	log.Printf("✅ Миграции выполнены: %d таблиц", len(tables))
	return nil
}
