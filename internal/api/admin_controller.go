package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"giftspa/server/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AdminController struct {
	orders *services.OrderService
}

func NewAdminController(orders *services.OrderService) *AdminController {
	return &AdminController{orders: orders}
}

// ListOrders GET /api/admin/orders?companyId=&paymentStatus=&status=&search=&from=&to=&limit=&offset=
func (ac *AdminController) ListOrders(c *gin.Context) {
	actor, _ := actorFrom(c)

	filter, err := parseOrderFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query", "details": err.Error()})
		return
	}

	orders, total, err := ac.orders.ListOrders(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// ExportOrders выгрузка заказов в Excel
// GET /api/admin/orders/export
func (ac *AdminController) ExportOrders(c *gin.Context) {
	actor, _ := actorFrom(c)

	filter, err := parseOrderFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query", "details": err.Error()})
		return
	}
	if c.Query("limit") == "" {
		filter.Limit = 1000
	}

	orders, _, err := ac.orders.ListOrders(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	data, err := services.ExportOrdersXLSX(orders)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("orders-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func parseOrderFilter(c *gin.Context) (services.OrderListFilter, error) {
	f := services.OrderListFilter{
		CompanyID:     c.Query("companyId"),
		PaymentStatus: c.Query("paymentStatus"),
		Status:        c.Query("status"),
		Search:        c.Query("search"),
		Limit:         100,
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("limit: %w", err)
		}
		f.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("offset: %w", err)
		}
		f.Offset = n
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, fmt.Errorf("from: %w", err)
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, fmt.Errorf("to: %w", err)
		}
		// включительно до конца дня
		end := t.Add(24 * time.Hour)
		f.To = &end
	}
	return f, nil
}
