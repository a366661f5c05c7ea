package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"giftspa/server/internal/services"
)

type OrderController struct {
	orders        *services.OrderService
	payments      *services.PaymentService
	publicBaseURL string
}

func NewOrderController(orders *services.OrderService, payments *services.PaymentService, publicBaseURL string) *OrderController {
	return &OrderController{
		orders:        orders,
		payments:      payments,
		publicBaseURL: publicBaseURL,
	}
}

// CreateOrder оформление сертификата клиентом и инициализация оплаты
// POST /api/orders
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req services.CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	created, err := oc.orders.CreateOrder(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	// Заказ уже сохранен. Ошибка шлюза не откатывает его: платеж остается pending
	payment, err := oc.payments.Initiate(c.Request.Context(), created, oc.publicBaseURL)
	if err != nil {
		log.Printf("❌ Не удалось создать платеж OneVision для заказа %s: %v", created.Order.OrderNumber, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":          created.Order,
		"certificate":    created.Certificate,
		"payment":        payment,
		"paymentPageUrl": payment.PaymentPageURL,
	})
}

// CreateAdminOrder заказ из админки: оплата наличными/терминалом, сразу paid
// POST /api/orders/admin
func (oc *OrderController) CreateAdminOrder(c *gin.Context) {
	actor, _ := actorFrom(c)

	var req services.CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	created, confirmation, err := oc.orders.CreateAdminOrder(c.Request.Context(), req, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":        created.Order,
		"certificate":  created.Certificate,
		"payment":      created.Payment,
		"confirmation": confirmation,
	})
}
