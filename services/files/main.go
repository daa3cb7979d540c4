// Сервис изображений: загрузка фото товаров и аватаров, раздача файлов.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/busqai/internal/config"
	"github.com/busqai/internal/fileserver"
	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/middleware"
)

func main() {
	logger.SetPrefix("files")
	cfg := config.Load()
	addr := os.Getenv("FILES_ADDR")
	if addr == "" {
		addr = ":8083"
	}
	logger.Infof("starting files service: upload_dir=%s max_upload=%d", cfg.UploadDir, cfg.MaxUploadSize)

	svc := fileserver.New(cfg.UploadDir, cfg.MaxUploadSize)
	serve := func(w http.ResponseWriter, r *http.Request) {
		svc.Serve(w, r, chi.URLParam(r, "filename"))
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLog)
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.SecureHeaders)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })

	// Внутренние маршруты для прокси API (подпись уже проверена API).
	r.With(middleware.InternalOnly).Post("/upload", svc.Upload)
	r.Get("/files/{filename}", serve)

	// Прямой доступ клиента: загрузка подписана, multipart подписывается с пустым телом.
	r.With(middleware.AuthServiceValidate(cfg.AuthServiceURL, nil)).Post("/api/files/upload", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize)
		svc.Upload(w, r)
	})
	r.Get("/api/files/{filename}", serve)

	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: 15 * time.Second, WriteTimeout: 30 * time.Second}
	go func() {
		logger.Infof("fileserver listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("fileserver: %v", err)
			logger.Flush()
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("fileserver shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("fileserver shutdown: %v", err)
	}
	logger.Info("fileserver stopped")
}
