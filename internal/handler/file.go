package handler

import (
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/busqai/internal/config"
	"github.com/busqai/internal/fileserver"
	"github.com/busqai/internal/logger"
)

// FileHandler — фото товаров и аватары. Без FILE_SERVICE_URL файлы хранятся локально,
// иначе запросы проксируются на сервис файлов.
type FileHandler struct {
	cfg        *config.Config
	fileSvc    *fileserver.Service
	fileClient *http.Client
	fileBase   string
}

func NewFileHandler(cfg *config.Config) *FileHandler {
	h := &FileHandler{cfg: cfg}
	if cfg.FileServiceURL == "" {
		h.fileSvc = fileserver.New(cfg.UploadDir, cfg.MaxUploadSize)
	} else {
		h.fileClient = &http.Client{Timeout: 60 * time.Second}
		h.fileBase = strings.TrimSuffix(cfg.FileServiceURL, "/")
	}
	return h
}

func copyProxyHeaders(w http.ResponseWriter, resp *http.Response) {
	for _, k := range []string{"Content-Length", "Content-Type", "Cache-Control"} {
		if v := resp.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}
}

func (h *FileHandler) proxy(w http.ResponseWriter, req *http.Request) {
	resp, err := h.fileClient.Do(req)
	if err != nil {
		logger.Errorf("file proxy %s: %v", req.URL.Path, err)
		writeError(w, http.StatusBadGateway, "file service unavailable")
		return
	}
	defer resp.Body.Close()
	copyProxyHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Debugf("file proxy copy: %v", err)
	}
}

func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.fileSvc != nil {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
		h.fileSvc.Upload(w, r)
		return
	}
	// Content-Length обязателен для корректного разбора multipart на стороне сервиса.
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.fileBase+"/upload", http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	req.Header.Set("Content-Type", r.Header.Get("Content-Type"))
	if r.ContentLength > 0 {
		req.ContentLength = r.ContentLength
	}
	h.proxy(w, req)
}

func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(chi.URLParam(r, "filename"))
	if h.fileSvc != nil {
		h.fileSvc.Serve(w, r, filename)
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.fileBase+"/files/"+url.PathEscape(filename), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.proxy(w, req)
}
