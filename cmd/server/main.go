// Package main runs the seminar attendance HTTP server with the live check-in board and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ce-seminars/backend/config"
	"github.com/ce-seminars/backend/internal/attendance"
	"github.com/ce-seminars/backend/internal/auth"
	"github.com/ce-seminars/backend/internal/credential"
	"github.com/ce-seminars/backend/internal/credits"
	"github.com/ce-seminars/backend/internal/emaillogs"
	"github.com/ce-seminars/backend/internal/events"
	"github.com/ce-seminars/backend/internal/export"
	"github.com/ce-seminars/backend/internal/metrics"
	"github.com/ce-seminars/backend/internal/middleware"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/internal/notify"
	"github.com/ce-seminars/backend/internal/orders"
	"github.com/ce-seminars/backend/internal/qrcode"
	"github.com/ce-seminars/backend/internal/realtime"
	"github.com/ce-seminars/backend/internal/registrations"
	"github.com/ce-seminars/backend/internal/seminars"
	"github.com/ce-seminars/backend/internal/sessions"
	"github.com/ce-seminars/backend/internal/waitlist"
	"github.com/ce-seminars/backend/pkg/database"
	"github.com/ce-seminars/backend/pkg/mq"
	"github.com/ce-seminars/backend/pkg/queue"
	"github.com/ce-seminars/backend/pkg/redis"
	"github.com/ce-seminars/backend/pkg/response"
	"github.com/ce-seminars/backend/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.Log.Level)
	defer logger.Sync()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var (
		s3Client *storage.S3
		uploader qrcode.Uploader
		qrLinker registrations.QRLinker
	)
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			QRBucket:             cfg.AWS.QRBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled, qr images stored locally", zap.Error(err))
		} else {
			uploader, qrLinker = s3Client, s3Client
		}
	}

	var publisher events.Publisher = mq.Nop{}
	if cfg.Rabbit.URL != "" {
		p, err := mq.NewPublisher(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
		if err != nil {
			logger.Warn("event publishing disabled", zap.Error(err))
		} else {
			defer p.Close()
			publisher = p
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	signer := credential.NewSigner(cfg.Credential.Secret)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	emitter := events.NewEmitter(publisher, logger)

	// Repositories
	userRepo := auth.NewRepository(pool)
	seminarRepo := seminars.NewRepository(pool)
	sessionRepo := sessions.NewRepository(pool)
	registrationRepo := registrations.NewRepository(pool)
	creditRepo := credits.NewRepository(pool)
	attendanceRepo := attendance.NewRepository(pool, registrationRepo, creditRepo)
	waitlistRepo := waitlist.NewRepository(pool)
	emailLogRepo := emaillogs.NewRepository(pool)
	orderRepo := orders.NewRepository(pool)

	// Email, waitlist, registrations
	mailer := notify.NewMailer(emailLogRepo, jobQueue, userRepo, seminarRepo, registrationRepo, logger)
	promoter := waitlist.NewPromoter(waitlistRepo, mailer, cfg.Waitlist.HoldWindow(), m, logger)
	registrationSvc := registrations.NewService(registrations.Deps{
		Store:     registrationRepo,
		Seminars:  seminarRepo,
		Sessions:  sessionRepo,
		Users:     userRepo,
		Signer:    signer,
		QR:        qrcode.NewGenerator(uploader, cfg.QR.OutputDir, cfg.QR.ImageSize, logger),
		Waitlist:  promoter,
		Promoter:  promoter,
		Listeners: []registrations.Listener{mailer, emitter},
	}, logger)

	// Check-in
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	attendanceSvc := attendance.NewService(signer, registrationRepo, sessionRepo, attendanceRepo, m, logger)
	attendanceSvc.AddListener(hub)
	attendanceSvc.AddListener(emitter)
	attendanceSvc.AddListener(mailer)

	orderSvc := orders.NewService(orderRepo, userRepo, seminarRepo, registrationSvc, m, logger)

	// Handlers
	authHandler := auth.NewHandler(userRepo, jwtService, logger)
	seminarHandler := seminars.NewHandler(seminarRepo, logger)
	sessionHandler := sessions.NewHandler(sessionRepo, seminarRepo, logger)
	registrationHandler := registrations.NewHandler(registrationSvc, qrLinker, logger)
	attendanceHandler := attendance.NewHandler(attendanceSvc, logger)
	creditHandler := credits.NewHandler(creditRepo, logger)
	waitlistHandler := waitlist.NewHandler(promoter, seminarRepo, logger)
	emailLogHandler := emaillogs.NewHandler(emailLogRepo, mailer)
	exportHandler := export.NewHandler(registrationRepo, seminarRepo, logger)
	orderWebhook := orders.NewWebhookHandler(orderSvc, cfg.Credential.OrderWebhookSecret, logger)

	jwtValidate := func(token string) (uuid.UUID, models.Role, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, "", err
		}
		return claims.UserID, claims.Role, nil
	}

	admin := middleware.RequireRole(models.RoleAdmin)
	staff := middleware.RequireRole(models.RoleAdmin, models.RoleStaff)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.Origins()))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Public waitlist sign-up (no account needed)
	router.POST("/seminars/:id/waitlist", waitlistHandler.Join)

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/users", admin, authHandler.List)
		api.GET("/users/:id/credits", staff, creditHandler.ForUser)

		// Seminars and sessions
		api.GET("/seminars", seminarHandler.List)
		api.POST("/seminars", admin, seminarHandler.Create)
		api.GET("/seminars/:id", seminarHandler.GetByID)
		api.PATCH("/seminars/:id", admin, seminarHandler.Update)
		api.GET("/seminars/:id/stats", staff, seminarHandler.Stats)
		api.GET("/seminars/:id/sessions", sessionHandler.List)
		api.POST("/seminars/:id/sessions", admin, sessionHandler.Create)
		api.GET("/seminars/:id/sessions/next", sessionHandler.Next)

		// Registrations
		api.POST("/seminars/:id/signup", registrationHandler.Signup)
		api.GET("/seminars/:id/registrations", staff, registrationHandler.ListBySeminar)
		api.GET("/seminars/:id/registrations/export", staff, exportHandler.Registrants)
		api.GET("/registrations/me", registrationHandler.Mine)
		api.GET("/registrations/:id", registrationHandler.Get)
		api.POST("/registrations/:id/cancel", registrationHandler.Cancel)
		api.GET("/registrations/:id/attendance", staff, attendanceHandler.RegistrationHistory)

		// Waitlist
		api.GET("/seminars/:id/waitlist", admin, waitlistHandler.List)
		api.POST("/seminars/:id/waitlist/notify", admin, waitlistHandler.Notify)

		// Check-in
		api.POST("/checkin/scan", staff, attendanceHandler.Scan)
		api.POST("/checkin/manual", admin, attendanceHandler.Manual)
		api.GET("/sessions/:id/attendance", staff, attendanceHandler.SessionSheet)

		// Credits
		api.GET("/credits/me", creditHandler.Mine)
		api.POST("/credits/adjust", admin, creditHandler.Adjust)

		// Email log
		api.GET("/seminars/:id/emails", admin, emailLogHandler.ListBySeminar)
		api.POST("/seminars/:id/emails/resend", admin, emailLogHandler.Resend)
	}

	// Webhooks (no JWT; HMAC signature checked in handler)
	router.POST("/webhooks/orders/completed", orderWebhook.OrderCompleted)

	// Live check-in board (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, jwtValidate, cfg.Server.Origins(), logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := config.Build()
	return logger
}
