package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"giftspa/server/internal/services"
)

// В production текст внутренних ошибок не отдается клиенту
var hideInternalErrors bool

// respondError единая точка перевода ошибок сервисов в HTTP статусы
func respondError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "details": err.Error()})
	case errors.Is(err, services.ErrInvalidSignature):
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "details": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "details": err.Error()})
	case errors.Is(err, services.ErrUpstream):
		log.Printf("❌ %s %s: ошибка внешнего сервиса: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusBadGateway, errorBody("ошибка платежного шлюза", err))
	default:
		log.Printf("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, errorBody("внутренняя ошибка сервера", err))
	}
}

func errorBody(message string, err error) gin.H {
	if hideInternalErrors {
		return gin.H{"error": message}
	}
	return gin.H{"error": message, "details": err.Error()}
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data", "details": err.Error()})
}
