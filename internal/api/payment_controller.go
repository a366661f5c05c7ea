package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"giftspa/server/internal/services"
)

type PaymentController struct {
	payments *services.PaymentService
}

func NewPaymentController(payments *services.PaymentService) *PaymentController {
	return &PaymentController{payments: payments}
}

// OneVisionCallback уведомление шлюза о статусе платежа. Без авторизации, проверяется подпись
// POST /api/payments/onevision/callback
func (pc *PaymentController) OneVisionCallback(c *gin.Context) {
	var body services.CallbackBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := pc.payments.HandleCallback(c.Request.Context(), body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"result": result,
	})
}

// ConfirmPayment ручное подтверждение оплаты из админки
// POST /api/payments/:id/confirm
func (pc *PaymentController) ConfirmPayment(c *gin.Context) {
	actor, _ := actorFrom(c)

	confirmation, err := pc.payments.ConfirmManually(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, confirmation)
}
