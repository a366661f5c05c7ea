package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"giftspa/server/internal/api"
	"giftspa/server/internal/config"
	"giftspa/server/internal/database"
	"giftspa/server/internal/models"
	"giftspa/server/internal/services"
	"giftspa/server/internal/utils"
)

func main() {
	// Загружаем переменные окружения из .env файла (если существует)
	if err := godotenv.Load(); err != nil {
		log.Printf("ℹ️ .env файл не найден, используем переменные окружения системы")
	} else {
		log.Printf("✅ Переменные окружения загружены из .env файла")
	}

	cfg := config.Load()
	log.Printf("📋 DATABASE_URL: %s", database.MaskURL(cfg.DatabaseURL))

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ PostgreSQL connection failed: %v", err)
	}
	defer database.ClosePostgres(db)

	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database migrations completed")

	// Redis необязателен: без него кэш каталога живет только в памяти инстанса
	redisClient, err := database.ConnectRedis(cfg.RedisURL, cfg.RedisSentinelAddrs, cfg.RedisMasterName)
	var redisUtil *utils.RedisClient
	if err != nil {
		log.Printf("⚠️ Redis connection failed: %v (continuing without Redis)", err)
		redisClient = nil
	} else {
		redisUtil = utils.NewRedisClient(redisClient)
	}
	defer database.CloseRedis(redisClient)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// События заказов: Kafka -> consumer -> WebSocket. Без Kafka hub получает события напрямую
	hub := api.NewHub()
	go hub.Run()
	defer hub.Stop()

	var sinks []services.EventSink
	var kafkaConsumer *api.KafkaWSConsumer
	if kafkaWriter := api.NewKafkaEventWriter(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert); kafkaWriter != nil {
		defer kafkaWriter.Close()
		sinks = append(sinks, kafkaWriter)

		kafkaConsumer = api.NewKafkaWSConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, hub, cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert)
		kafkaConsumer.Start()
		defer kafkaConsumer.Stop()
	} else {
		log.Printf("⚠️ KAFKA_BROKERS не установлен: события идут в WebSocket напрямую")
		sinks = append(sinks, hub)
	}
	events := services.NewEventPublisher(sinks...)

	catalog := services.NewCatalogCache(db, redisUtil)
	if err := catalog.Load(ctx); err != nil {
		log.Printf("⚠️ Не удалось прогреть кэш каталога: %v", err)
	}
	catalog.StartInvalidationListener(ctx)
	defer catalog.Stop()

	storage, err := services.NewFileStorage(cfg.StorageDir)
	if err != nil {
		log.Fatalf("❌ File storage: %v", err)
	}

	emailClient := services.NewEmailClient(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom)
	if !emailClient.Configured() {
		log.Printf("⚠️ EMAIL_API_KEY/EMAIL_FROM не заданы: отправка email выключена")
	}

	authService := services.NewAuthService(db, cfg.JWTSecret)
	certificateService := services.NewCertificateService(db, events)
	fulfillmentService := services.NewFulfillmentService(db,
		services.NewCertificateRenderer(cfg.CertFontPath),
		storage,
		emailClient,
		services.NewWhatsAppClient(cfg.WhatsAppAPIURL),
		events,
	)
	paymentService := services.NewPaymentService(db,
		services.NewOneVisionClient(cfg.OneVisionAPIURL),
		fulfillmentService,
		events,
		cfg.PublicBaseURL,
		cfg.FrontendURL,
	)
	utmService := services.NewUtmService(db)
	orderService := services.NewOrderService(db,
		services.NewClientService(db),
		certificateService,
		utmService,
		paymentService,
		events,
		cfg.CertValidityDays,
	)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.RouterDeps{
		DB:             db,
		Orders:         orderService,
		Payments:       paymentService,
		Certificates:   certificateService,
		Storage:        storage,
		Auth:           authService,
		Catalog:        catalog,
		Utm:            utmService,
		Hub:            hub,
		Redis:          redisUtil,
		PublicBaseURL:  cfg.PublicBaseURL,
		FrontendURL:    cfg.FrontendURL,
		HideErrorTexts: cfg.IsProduction(),
	})

	// gRPC для касс филиалов: проверка и погашение сертификатов
	grpcServer, grpcHealth := api.NewGRPCServer(api.NewCertificateGRPCServer(certificateService, authService))
	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			log.Fatalf("failed to listen gRPC: %v", err)
		}
		log.Printf("📡 gRPC Server starting on port %s", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("⚠️ gRPC server stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("🚀 Server starting on port %s", cfg.ServerPort)
		log.Printf("📡 API доступен на http://0.0.0.0:%s/api", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Получен сигнал остановки, завершаем работу...")

	grpcHealth.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	grpcServer.GracefulStop()
	log.Println("✅ Сервер остановлен")
}
