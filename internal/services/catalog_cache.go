package services

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"giftspa/server/internal/models"
	"giftspa/server/internal/utils"
)

const (
	CatalogInvalidateChannel = "catalog:invalidate" // Канал Pub/Sub для сброса кэша на всех инстансах
	catalogCacheKey          = "catalog:snapshot"
	catalogCacheTTL          = 10 * time.Minute
)

// catalogSnapshot публичная часть каталога (без ключей платежного шлюза)
type catalogSnapshot struct {
	Companies  []models.Company                 `json:"companies"`
	Templates  []models.Template                `json:"templates"`
	Procedures map[string][]models.SpaProcedure `json:"procedures"`
	LoadedAt   time.Time                        `json:"loaded_at"`
}

// CatalogCache кэш филиалов, шаблонов и услуг для витрины.
// Хранится в памяти и в Redis, сбрасывается явно через Invalidate
type CatalogCache struct {
	db        *gorm.DB
	redisUtil *utils.RedisClient
	mu        sync.RWMutex
	snapshot  *catalogSnapshot
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewCatalogCache создает кэш каталога. redisUtil может быть nil
func NewCatalogCache(db *gorm.DB, redisUtil *utils.RedisClient) *CatalogCache {
	return &CatalogCache{
		db:        db,
		redisUtil: redisUtil,
		stop:      make(chan struct{}),
	}
}

// Companies активные филиалы
func (c *CatalogCache) Companies(ctx context.Context) ([]models.Company, error) {
	snap, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Companies, nil
}

// Templates активные шаблоны, видимые филиалу (пустой companyID = все)
func (c *CatalogCache) Templates(ctx context.Context, companyID string) ([]models.Template, error) {
	snap, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	if companyID == "" {
		return snap.Templates, nil
	}
	result := make([]models.Template, 0, len(snap.Templates))
	for _, t := range snap.Templates {
		if t.VisibleFor(companyID) {
			result = append(result, t)
		}
	}
	return result, nil
}

// Procedures активные услуги филиала
func (c *CatalogCache) Procedures(ctx context.Context, companyID string) ([]models.SpaProcedure, error) {
	snap, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	for _, company := range snap.Companies {
		if company.ID == companyID {
			return snap.Procedures[companyID], nil
		}
	}
	return nil, notFound(gorm.ErrRecordNotFound, "филиал")
}

func (c *CatalogCache) get(ctx context.Context) (*catalogSnapshot, error) {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	// Другой инстанс мог уже положить снимок в Redis
	if c.redisUtil != nil {
		var cached catalogSnapshot
		err := c.redisUtil.GetJSON(ctx, catalogCacheKey, &cached)
		if err == nil {
			c.store(&cached)
			return &cached, nil
		}
		if !errors.Is(err, utils.ErrCacheMiss) {
			log.Printf("⚠️ Ошибка чтения каталога из Redis: %v", err)
		}
	}

	return c.load(ctx)
}

// Load загружает каталог из БД и обновляет оба уровня кэша (прогрев при старте)
func (c *CatalogCache) Load(ctx context.Context) error {
	_, err := c.load(ctx)
	return err
}

func (c *CatalogCache) load(ctx context.Context) (*catalogSnapshot, error) {
	db := c.db.WithContext(ctx)

	var companies []models.Company
	if err := db.Where("status = ?", models.CompanyStatusActive).Order("label ASC").Find(&companies).Error; err != nil {
		return nil, err
	}

	var templates []models.Template
	if err := db.Where("is_active = ?", true).Order("name ASC").Find(&templates).Error; err != nil {
		return nil, err
	}

	var procedures []models.SpaProcedure
	if err := db.Where("is_active = ?", true).Find(&procedures).Error; err != nil {
		return nil, err
	}
	byCompany := make(map[string][]models.SpaProcedure)
	for _, p := range procedures {
		byCompany[p.CompanyID] = append(byCompany[p.CompanyID], p)
	}
	for id := range byCompany {
		list := byCompany[id]
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}

	snap := &catalogSnapshot{
		Companies:  companies,
		Templates:  templates,
		Procedures: byCompany,
		LoadedAt:   time.Now().UTC(),
	}
	c.store(snap)

	if c.redisUtil != nil {
		if err := c.redisUtil.SetJSON(ctx, catalogCacheKey, snap, catalogCacheTTL); err != nil {
			log.Printf("⚠️ Не удалось сохранить каталог в Redis: %v", err)
		}
	}

	log.Printf("✅ Каталог загружен из БД: %d филиалов, %d шаблонов, %d услуг",
		len(companies), len(templates), len(procedures))
	return snap, nil
}

func (c *CatalogCache) store(snap *catalogSnapshot) {
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
}

func (c *CatalogCache) reset() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}

// Invalidate сбрасывает кэш локально, в Redis и на остальных инстансах
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	c.reset()
	if c.redisUtil == nil {
		return nil
	}
	if err := c.redisUtil.Delete(ctx, catalogCacheKey); err != nil {
		return err
	}
	return c.redisUtil.Publish(ctx, CatalogInvalidateChannel, time.Now().UTC().Format(time.RFC3339))
}

// StartInvalidationListener слушает Redis канал и сбрасывает локальный кэш
func (c *CatalogCache) StartInvalidationListener(ctx context.Context) {
	if c.redisUtil == nil {
		return
	}
	go func() {
		ch, closeFn := c.redisUtil.Subscribe(ctx, CatalogInvalidateChannel)
		defer func() {
			if err := closeFn(); err != nil {
				log.Printf("⚠️ Ошибка закрытия Pub/Sub: %v", err)
			}
		}()
		log.Printf("👂 Слушаем канал Redis: %s", CatalogInvalidateChannel)

		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					log.Println("⚠️ Pub/Sub канал закрыт, переподписываемся...")
					if err := closeFn(); err != nil {
						log.Printf("⚠️ Ошибка закрытия Pub/Sub: %v", err)
					}
					select {
					case <-time.After(time.Second):
					case <-c.stop:
						return
					case <-ctx.Done():
						return
					}
					ch, closeFn = c.redisUtil.Subscribe(ctx, CatalogInvalidateChannel)
					continue
				}
				log.Printf("🔔 Сброс кэша каталога по Pub/Sub: %s", msg.Payload)
				c.reset()
			case <-c.stop:
				log.Println("🛑 Остановка Pub/Sub listener каталога")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop останавливает listener
func (c *CatalogCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
