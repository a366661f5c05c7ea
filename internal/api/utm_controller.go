package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"giftspa/server/internal/services"
)

type UtmController struct {
	utm *services.UtmService
}

func NewUtmController(utm *services.UtmService) *UtmController {
	return &UtmController{utm: utm}
}

// RecordVisit POST /api/utm/visits
func (uc *UtmController) RecordVisit(c *gin.Context) {
	var req services.UtmVisitInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.Referrer == "" {
		req.Referrer = c.Request.Referer()
	}

	visit, err := uc.utm.RecordVisit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": visit.ID, "utm_tag_id": visit.UtmTagID})
}
