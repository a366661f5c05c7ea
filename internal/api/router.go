package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"giftspa/server/internal/database"
	"giftspa/server/internal/models"
	"giftspa/server/internal/services"
	"giftspa/server/internal/utils"
)

// RouterDeps все, что нужно HTTP слою. Необязательные поля могут быть nil
type RouterDeps struct {
	DB             *gorm.DB
	Orders         *services.OrderService
	Payments       *services.PaymentService
	Certificates   *services.CertificateService
	Storage        *services.FileStorage
	Auth           *services.AuthService
	Catalog        *services.CatalogCache
	Utm            *services.UtmService
	Hub            *Hub
	Redis          *utils.RedisClient
	PublicBaseURL  string
	FrontendURL    string
	HideErrorTexts bool
}

// NewRouter собирает gin.Engine со всеми маршрутами /api
func NewRouter(d RouterDeps) *gin.Engine {
	if err := RegisterValidators(); err != nil {
		log.Printf("⚠️ Не удалось зарегистрировать валидаторы: %v", err)
	}
	hideInternalErrors = d.HideErrorTexts

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(CORS(d.FrontendURL))

	r.GET("/api/health", func(c *gin.Context) {
		dbStatus := "ok"
		if d.DB != nil {
			if err := database.HealthCheck(d.DB, 2*time.Second); err != nil {
				dbStatus = "unavailable"
			}
		}
		// Redis необязателен, его недоступность не роняет health
		redisStatus := "disabled"
		if d.Redis != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			redisStatus = "ok"
			if err := d.Redis.Ping(ctx); err != nil {
				redisStatus = "unavailable"
			}
			cancel()
		}
		wsClients := 0
		if d.Hub != nil {
			wsClients = d.Hub.GetClientsCount()
		}
		code := http.StatusOK
		if dbStatus != "ok" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":     "ok",
			"database":   dbStatus,
			"redis":      redisStatus,
			"ws_clients": wsClients,
			"time":       time.Now().UTC(),
		})
	})

	apiGroup := r.Group("/api")

	staff := []gin.HandlerFunc{AuthRequired(d.Auth), RequireRoles(StaffRoles...)}
	admins := []gin.HandlerFunc{AuthRequired(d.Auth), RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)}

	if d.Auth != nil {
		authController := NewAuthController(d.Auth)
		authGroup := apiGroup.Group("/auth")
		{
			authGroup.POST("/login", authController.Login)
			authGroup.GET("/me", append(staff, authController.Me)...)
		}
		log.Println("✅ Auth endpoints enabled")
	}

	if d.Orders != nil && d.Payments != nil {
		orderController := NewOrderController(d.Orders, d.Payments, d.PublicBaseURL)
		paymentController := NewPaymentController(d.Payments)

		apiGroup.POST("/orders", orderController.CreateOrder)
		apiGroup.POST("/orders/admin", append(staff, orderController.CreateAdminOrder)...)
		apiGroup.POST("/payments/onevision/callback", paymentController.OneVisionCallback)
		apiGroup.POST("/payments/:id/confirm", append(staff, paymentController.ConfirmPayment)...)
		log.Println("✅ Orders & payments endpoints enabled")
	}

	if d.Certificates != nil && d.Storage != nil {
		certificateController := NewCertificateController(d.Certificates, d.Storage)
		apiGroup.GET("/certificates/:id/download", certificateController.Download)
		log.Println("✅ Certificate download endpoint enabled")
	}

	if d.Catalog != nil {
		catalogController := NewCatalogController(d.Catalog)
		apiGroup.GET("/companies", catalogController.GetCompanies)
		apiGroup.GET("/companies/:id/services", catalogController.GetServices)
		apiGroup.GET("/templates", catalogController.GetTemplates)
		apiGroup.POST("/admin/catalog/invalidate", append(admins, catalogController.InvalidateCatalog)...)
		log.Println("✅ Catalog endpoints enabled")
	}

	if d.Utm != nil {
		utmController := NewUtmController(d.Utm)
		apiGroup.POST("/utm/visits", utmController.RecordVisit)
	}

	if d.Orders != nil {
		adminController := NewAdminController(d.Orders)
		adminGroup := apiGroup.Group("/admin", staff...)
		{
			adminGroup.GET("/orders", adminController.ListOrders)
			adminGroup.GET("/orders/export", adminController.ExportOrders)
		}
		if d.Hub != nil {
			apiGroup.GET("/admin/ws", AuthRequiredWS(d.Auth), RequireRoles(StaffRoles...), d.Hub.ServeAdminWS)
		}
		log.Println("✅ Admin endpoints enabled")
	}

	return r
}
