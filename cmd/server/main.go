package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/keywarden/keywarden/internal/bot"
	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/handler"
	"github.com/keywarden/keywarden/internal/handler/middleware"
	"github.com/keywarden/keywarden/internal/ierr"
	"github.com/keywarden/keywarden/internal/service"
	"github.com/keywarden/keywarden/internal/storage/postgres"
	"github.com/keywarden/keywarden/internal/storage/redis"
	"github.com/keywarden/keywarden/internal/tasks"
	"github.com/keywarden/keywarden/internal/worker"
	"github.com/keywarden/keywarden/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting application...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := postgres.NewPgxPool(appCtx, &cfg.Database, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbPool.Close()

	redisClient, err := redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	keyRepo := postgres.NewKeyRepository(dbPool, appLogger)
	userRepo := postgres.NewUserRepository(dbPool, appLogger)
	auditRepo := postgres.NewAuditRepository(dbPool, appLogger)
	pendingStore := redis.NewPendingResetStore(redisClient, cfg.Cooldown.PendingWindow, appLogger)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()
	auditRecorder := tasks.NewEnqueuer(asynqClient, appLogger)

	cooldownPolicy := service.NewCooldownPolicy(&cfg.Cooldown)
	keyService := service.NewKeyService(keyRepo, userRepo, cooldownPolicy, auditRecorder, cfg.Keys.MaxBatchAPI, appLogger)

	healthHandler := handler.NewHealthHandler(dbPool, redisClient, appLogger)
	keyHandler := handler.NewKeyHandler(keyService, appLogger)
	verifyHandler := handler.NewVerifyHandler(keyService, appLogger)

	secretAuthMiddleware := middleware.SecretAuthMiddleware(cfg.Auth.APISecret, appLogger)
	errorMiddleware := middleware.ErrorHandlerMiddleware(appLogger)

	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logMsg := "Panic recovered"
		if err, ok := recovered.(string); ok {
			logMsg = fmt.Sprintf("%s: %s", logMsg, err)
		} else if err, ok := recovered.(error); ok {
			logMsg = fmt.Sprintf("%s: %v", logMsg, err)
		}
		appLogger.Error(logMsg, zap.Stack("stack"))

		_ = c.Error(ierr.ErrInternalServer)
		c.Abort()
	}))

	corsConfig := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"X-API-Key",
		},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))
	router.Use(errorMiddleware)

	router.GET("/", healthHandler.Root)
	router.GET("/api/health", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/api/verify", verifyHandler.Verify)

	apiRoutes := router.Group("/api")
	apiRoutes.Use(secretAuthMiddleware)
	{
		keyRoutes := apiRoutes.Group("/keys")
		{
			keyRoutes.POST("/create", keyHandler.Create)
			keyRoutes.GET("/check/:key", keyHandler.Check)
			keyRoutes.GET("/list", keyHandler.List)
			keyRoutes.POST("/blacklist", keyHandler.Blacklist)
		}
		apiRoutes.GET("/stats", keyHandler.Stats)
	}

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugarLogger.Errorf("HTTP server ListenAndServe error: %v", err)
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugarLogger.Errorf("HTTP server graceful shutdown failed: %v", err)
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	g.Go(func() error {
		if err := worker.RunWorkers(groupCtx, cfg, keyRepo, auditRepo, appLogger); err != nil {
			sugarLogger.Error("Asynq worker failed", zap.Error(err))
			return fmt.Errorf("asynq worker error: %w", err)
		}
		sugarLogger.Info("Asynq workers finished gracefully.")
		return nil
	})

	if cfg.Discord.Enabled {
		discordBot, err := bot.New(&cfg.Discord, keyService, pendingStore, cfg.Keys.MaxBatchChat, appLogger)
		if err != nil {
			sugarLogger.Fatalf("Failed to create Discord bot: %v", err)
		}
		g.Go(func() error {
			if err := discordBot.Run(groupCtx); err != nil {
				sugarLogger.Error("Discord bot failed", zap.Error(err))
				return fmt.Errorf("discord bot error: %w", err)
			}
			sugarLogger.Info("Discord bot finished gracefully.")
			return nil
		})
	} else {
		sugarLogger.Info("Discord bot disabled, serving HTTP API only.")
	}

	sugarLogger.Info("Application started. Waiting for interrupt signal (Ctrl+C) or component error...")

	waitErr := g.Wait()

	sugarLogger.Info("Shutdown sequence finished.")

	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) {
			sugarLogger.Info("Shutdown reason: Context canceled (likely due to OS signal).")
		} else if errors.Is(waitErr, http.ErrServerClosed) {
			sugarLogger.Info("Shutdown reason: HTTP server closed normally.")
		} else {
			sugarLogger.Errorf("Application shutdown finished with unexpected error: %v", waitErr)
		}
	} else {
		sugarLogger.Info("Application shutdown successfully (all components finished without errors).")
	}

	sugarLogger.Info("Application exiting now.")
}
