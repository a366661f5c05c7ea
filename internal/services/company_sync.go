package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"giftspa/server/internal/models"
)

// CompanySyncFile файл начальной загрузки филиалов (certctl sync-companies)
type CompanySyncFile struct {
	Companies []CompanySyncEntry `yaml:"companies"`
}

// CompanySyncEntry филиал в YAML. Секреты можно задавать как ${ENV_VAR}
type CompanySyncEntry struct {
	ID        string `yaml:"id"`
	Label     string `yaml:"label"`
	Address   string `yaml:"address"`
	Phone     string `yaml:"phone"`
	LegalName string `yaml:"legal_name"`
	BIN       string `yaml:"bin"`
	Status    string `yaml:"status"`
	OneVision struct {
		MerchantID string `yaml:"merchant_id"`
		APIKey     string `yaml:"api_key"`
		Secret     string `yaml:"secret"`
		ServiceID  string `yaml:"service_id"`
	} `yaml:"onevision"`
	WhatsApp struct {
		InstanceID string `yaml:"instance_id"`
		Token      string `yaml:"token"`
	} `yaml:"whatsapp"`
	Aliases    []string             `yaml:"aliases"`
	Procedures []ProcedureSyncEntry `yaml:"procedures"`
}

// ProcedureSyncEntry услуга филиала в YAML
type ProcedureSyncEntry struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Price           int64  `yaml:"price"`
	DiscountPercent int    `yaml:"discount_percent"`
	DurationMinutes int    `yaml:"duration_minutes"`
	Active          *bool  `yaml:"active"`
}

// SyncResult сколько записей обработано
type SyncResult struct {
	Companies  int
	Aliases    int
	Procedures int
}

// ParseCompanySyncFile разбирает YAML с подстановкой переменных окружения
func ParseCompanySyncFile(data []byte) (*CompanySyncFile, error) {
	var file CompanySyncFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML: %w", err)
	}
	for i, c := range file.Companies {
		if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Label) == "" {
			return nil, validationErrorf("филиал #%d: id и label обязательны", i+1)
		}
		for j, p := range c.Procedures {
			if p.ID == "" || p.Name == "" || p.Price <= 0 {
				return nil, validationErrorf("филиал %s, услуга #%d: id, name и price > 0 обязательны", c.ID, j+1)
			}
			if p.DiscountPercent < 0 || p.DiscountPercent > 100 {
				return nil, validationErrorf("филиал %s, услуга %s: скидка должна быть от 0 до 100", c.ID, p.ID)
			}
		}
	}
	return &file, nil
}

// CompanySyncService upsert филиалов, алиасов и услуг из файла
type CompanySyncService struct {
	db      *gorm.DB
	catalog *CatalogCache
}

// NewCompanySyncService создает сервис синхронизации. catalog может быть nil
func NewCompanySyncService(db *gorm.DB, catalog *CatalogCache) *CompanySyncService {
	return &CompanySyncService{db: db, catalog: catalog}
}

// Sync применяет файл одной транзакцией и сбрасывает кэш каталога
func (s *CompanySyncService) Sync(ctx context.Context, file *CompanySyncFile) (*SyncResult, error) {
	result := &SyncResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range file.Companies {
			status := models.CompanyStatus(strings.ToLower(entry.Status))
			if status == "" {
				status = models.CompanyStatusActive
			}
			company := models.Company{
				ID:                  entry.ID,
				Label:               entry.Label,
				Address:             entry.Address,
				Phone:               entry.Phone,
				LegalName:           entry.LegalName,
				BIN:                 entry.BIN,
				OneVisionMerchantID: entry.OneVision.MerchantID,
				OneVisionAPIKey:     entry.OneVision.APIKey,
				OneVisionSecret:     entry.OneVision.Secret,
				OneVisionServiceID:  entry.OneVision.ServiceID,
				WhatsAppInstanceID:  entry.WhatsApp.InstanceID,
				WhatsAppToken:       entry.WhatsApp.Token,
				Status:              status,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"label", "address", "phone", "legal_name", "bin",
					"onevision_merchant_id", "onevision_api_key", "onevision_secret", "onevision_service_id",
					"whatsapp_instance_id", "whatsapp_token", "status", "updated_at",
				}),
			}).Create(&company).Error; err != nil {
				return fmt.Errorf("ошибка upsert филиала %s: %w", entry.ID, err)
			}
			result.Companies++

			for _, aliasID := range entry.Aliases {
				alias := models.CompanyAlias{AliasID: aliasID, CompanyID: entry.ID}
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "alias_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"company_id"}),
				}).Create(&alias).Error; err != nil {
					return fmt.Errorf("ошибка upsert алиаса %s: %w", aliasID, err)
				}
				result.Aliases++
			}

			for _, p := range entry.Procedures {
				active := true
				if p.Active != nil {
					active = *p.Active
				}
				duration := p.DurationMinutes
				if duration <= 0 {
					duration = 60
				}
				procedure := models.SpaProcedure{
					ID:              p.ID,
					CompanyID:       entry.ID,
					Name:            p.Name,
					Price:           p.Price,
					DiscountPercent: p.DiscountPercent,
					DurationMinutes: duration,
					IsActive:        active,
				}
				if err := tx.Clauses(clause.OnConflict{
					Columns: []clause.Column{{Name: "id"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"company_id", "name", "price", "discount_percent", "duration_minutes", "is_active", "updated_at",
					}),
				}).Create(&procedure).Error; err != nil {
					return fmt.Errorf("ошибка upsert услуги %s: %w", p.ID, err)
				}
				// default:true в теге глотает false при вставке
				if !active {
					if err := tx.Model(&models.SpaProcedure{}).Where("id = ?", p.ID).Update("is_active", false).Error; err != nil {
						return fmt.Errorf("ошибка отключения услуги %s: %w", p.ID, err)
					}
				}
				result.Procedures++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.catalog != nil {
		if err := s.catalog.Invalidate(ctx); err != nil {
			log.Printf("⚠️ Не удалось сбросить кэш каталога: %v", err)
		}
	}

	log.Printf("✅ Синхронизация филиалов: %d филиалов, %d алиасов, %d услуг",
		result.Companies, result.Aliases, result.Procedures)
	return result, nil
}
