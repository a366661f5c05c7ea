package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"giftspa/server/internal/services"
)

type CertificateController struct {
	certificates *services.CertificateService
	storage      *services.FileStorage
}

func NewCertificateController(certificates *services.CertificateService, storage *services.FileStorage) *CertificateController {
	return &CertificateController{
		certificates: certificates,
		storage:      storage,
	}
}

// Download отдает PDF только после оплаты заказа
// GET /api/certificates/:id/download
func (cc *CertificateController) Download(c *gin.Context) {
	cert, order, err := cc.certificates.GetWithOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if order == nil || !order.IsPaid() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Сертификат еще не оплачен"})
		return
	}
	if cert.FileURL == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Файл сертификата еще не готов"})
		return
	}

	data, err := cc.storage.Read(cert.FileURL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="certificate-%s.pdf"`, cert.Code))
	c.Data(http.StatusOK, "application/pdf", data)
}
