// Сервис авторизации: вход по SMS-коду, сессии устройств, проверка подписи запросов.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/busqai/internal/config"
	"github.com/busqai/internal/handler"
	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/middleware"
	"github.com/busqai/internal/repository"
	"github.com/busqai/internal/service"
	"github.com/busqai/internal/sms"
	"github.com/busqai/internal/startup"
	"github.com/busqai/internal/storage"
	"github.com/busqai/internal/storage/devstore"
)

func main() {
	logger.SetPrefix("auth")
	dev := flag.Bool("dev", false, "use in-memory store instead of Redis (no Redis required)")
	flag.Parse()

	logger.Info("starting auth service")
	cfg := config.Load()
	sender := sms.NewSender(&cfg.SMS)
	if !sender.Configured() {
		logger.Info("SMS-шлюз не настроен (SMS_GATEWAY_URL). Коды будут только в логе.")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "auth: ")
	defer pool.Close()

	profileRepo := repository.NewProfileRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)

	var store storage.SessionOTPStore
	if *dev {
		logger.Info("auth -dev: session_secret хранится в БД, коды в памяти")
		store = devstore.New(sessionRepo)
	} else {
		redisClient := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "auth: ")
		store = redisClient
	}
	defer store.Close()

	otpSvc := service.NewOTPAuthService(profileRepo, sessionRepo, store, sender)
	authH := handler.NewAuthHandler(otpSvc)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLog)
	r.Use(middleware.RecoverJSON)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Session-Id", "X-Timestamp", "X-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/auth/request-code", authH.RequestCode)
	r.Post("/api/auth/verify-code", authH.VerifyCode)
	r.With(middleware.InternalOnly).Post("/internal/validate", authH.ValidateSession)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(otpSvc))
		r.Get("/api/auth/sessions", authH.GetSessions)
		r.Delete("/api/auth/sessions", authH.LogoutAllSessions)
		r.Delete("/api/auth/sessions/{id}", authH.LogoutSession)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := os.Getenv("AUTH_ADDR")
	if addr == "" {
		addr = ":8081"
	}
	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}
	var srvWg sync.WaitGroup
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("auth server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("auth server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down auth server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("auth server shutdown: %v", err)
	}
	srvWg.Wait()
	logger.Info("auth server stopped")
}
