package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"giftspa/server/internal/models"
)

// UtmVisitInput визит посетителя с рекламными метками
type UtmVisitInput struct {
	VisitorID  string `json:"visitorId" binding:"required,max=64"`
	Source     string `json:"utm_source" binding:"required,max=100"`
	Medium     string `json:"utm_medium" binding:"max=100"`
	Campaign   string `json:"utm_campaign" binding:"max=255"`
	Content    string `json:"utm_content" binding:"max=255"`
	Term       string `json:"utm_term" binding:"max=255"`
	LandingURL string `json:"landingUrl"`
	Referrer   string `json:"referrer"`
}

// UtmService учет рекламных визитов и атрибуция заказов
type UtmService struct {
	db *gorm.DB
}

// NewUtmService создает новый сервис UTM
func NewUtmService(db *gorm.DB) *UtmService {
	return &UtmService{db: db}
}

// RecordVisit сохраняет метку (если новая) и визит
func (s *UtmService) RecordVisit(ctx context.Context, in UtmVisitInput) (*models.UtmVisit, error) {
	if strings.TrimSpace(in.VisitorID) == "" || strings.TrimSpace(in.Source) == "" {
		return nil, validationErrorf("visitorId и utm_source обязательны")
	}

	tag := models.UtmTag{
		Source:   strings.ToLower(strings.TrimSpace(in.Source)),
		Medium:   strings.ToLower(strings.TrimSpace(in.Medium)),
		Campaign: strings.TrimSpace(in.Campaign),
		Content:  strings.TrimSpace(in.Content),
		Term:     strings.TrimSpace(in.Term),
	}

	var visit *models.UtmVisit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "medium"}, {Name: "campaign"}, {Name: "content"}, {Name: "term"}},
			DoNothing: true,
		}).Create(&tag).Error; err != nil {
			return fmt.Errorf("ошибка сохранения UTM метки: %w", err)
		}

		var stored models.UtmTag
		if err := tx.Where("source = ? AND medium = ? AND campaign = ? AND content = ? AND term = ?",
			tag.Source, tag.Medium, tag.Campaign, tag.Content, tag.Term).First(&stored).Error; err != nil {
			return fmt.Errorf("ошибка чтения UTM метки: %w", err)
		}

		visit = &models.UtmVisit{
			VisitorID:  strings.TrimSpace(in.VisitorID),
			UtmTagID:   stored.ID,
			LandingURL: in.LandingURL,
			Referrer:   in.Referrer,
		}
		if err := tx.Create(visit).Error; err != nil {
			return fmt.Errorf("ошибка сохранения визита: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return visit, nil
}

// AttributeTag возвращает метку последнего визита посетителя (nil, если визитов нет)
func (s *UtmService) AttributeTag(tx *gorm.DB, visitorID string) (*string, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, nil
	}
	var visits []models.UtmVisit
	if err := tx.Where("visitor_id = ?", visitorID).Order("created_at DESC").Limit(1).Find(&visits).Error; err != nil {
		return nil, fmt.Errorf("ошибка поиска UTM визита: %w", err)
	}
	if len(visits) == 0 {
		return nil, nil
	}
	tagID := visits[0].UtmTagID
	return &tagID, nil
}
