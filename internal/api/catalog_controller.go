package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"giftspa/server/internal/services"
)

// CatalogController публичный каталог витрины: филиалы, процедуры, шаблоны
type CatalogController struct {
	catalog *services.CatalogCache
}

func NewCatalogController(catalog *services.CatalogCache) *CatalogController {
	return &CatalogController{catalog: catalog}
}

// GetCompanies GET /api/companies
func (cc *CatalogController) GetCompanies(c *gin.Context) {
	companies, err := cc.catalog.Companies(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"companies": companies})
}

// GetServices GET /api/companies/:id/services
func (cc *CatalogController) GetServices(c *gin.Context) {
	procedures, err := cc.catalog.Procedures(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	type serviceView struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Price           int64  `json:"price"`
		DiscountPercent int    `json:"discount_percent"`
		FinalPrice      int64  `json:"final_price"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	views := make([]serviceView, 0, len(procedures))
	for _, p := range procedures {
		views = append(views, serviceView{
			ID:              p.ID,
			Name:            p.Name,
			Price:           p.Price,
			DiscountPercent: p.DiscountPercent,
			FinalPrice:      services.DiscountedPrice(p.Price, p.DiscountPercent),
			DurationMinutes: p.DurationMinutes,
		})
	}
	c.JSON(http.StatusOK, gin.H{"services": views})
}

// GetTemplates GET /api/templates?companyId=
func (cc *CatalogController) GetTemplates(c *gin.Context) {
	templates, err := cc.catalog.Templates(c.Request.Context(), c.Query("companyId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// InvalidateCatalog сбрасывает кэш каталога на всех инстансах (через Redis Pub/Sub)
// POST /api/admin/catalog/invalidate
func (cc *CatalogController) InvalidateCatalog(c *gin.Context) {
	if err := cc.catalog.Invalidate(c.Request.Context()); err != nil {
		log.Printf("⚠️ Не удалось разослать инвалидацию каталога: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Каталог будет перечитан из БД"})
}
