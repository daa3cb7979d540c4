// Package fileserver — загрузка и раздача изображений товаров. Файлы хранятся сжатыми (.gz).
package fileserver

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
)

// imageTypes — разрешённые расширения и их Content-Type.
var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// PublicPrefix — путь, по которому API и медиа-сервис отдают файлы.
const PublicPrefix = "/api/files/"

type Service struct {
	UploadDir     string
	MaxUploadSize int64
}

func New(uploadDir string, maxUploadSize int64) *Service {
	return &Service{UploadDir: uploadDir, MaxUploadSize: maxUploadSize}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("fileserver writeJSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Upload принимает multipart/form-data с полем "file" (только изображения).
func (s *Service) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadSize)
	if err := r.ParseMultipartForm(s.MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := imageTypes[ext]; !ok {
		writeError(w, http.StatusUnsupportedMediaType, "only jpg, png, gif and webp images are allowed")
		return
	}
	head := make([]byte, 512)
	n, _ := io.ReadAtLeast(file, head, len(head))
	head = head[:n]
	if !matchMagic(ext, head) {
		writeError(w, http.StatusUnsupportedMediaType, "file content does not match type")
		return
	}

	name := uuid.New().String() + ext
	size, err := s.store(r.Context(), name, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		logger.Errorf("fileserver store %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	writeJSON(w, http.StatusOK, model.UploadResponse{URL: PublicPrefix + name, Filename: name, Size: size})
}

// store пишет поток в UploadDir/name.gz; при ошибке частичный файл удаляется.
func (s *Service) store(ctx context.Context, name string, src io.Reader) (int64, error) {
	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		return 0, err
	}
	dstPath := filepath.Join(s.UploadDir, name+".gz")
	dst, err := os.Create(dstPath)
	if err != nil {
		return 0, err
	}
	gz := gzip.NewWriter(dst)
	size, err := copyWithContext(ctx, gz, src)
	if err == nil {
		err = gz.Close()
	} else {
		gz.Close()
	}
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dstPath)
		return 0, err
	}
	return size, nil
}

func matchMagic(ext string, head []byte) bool {
	switch ext {
	case ".jpg", ".jpeg":
		return len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF
	case ".png":
		return len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	case ".gif":
		return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
	case ".webp":
		return len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP"))
	}
	return false
}

// Serve отдаёт изображение по имени, распаковывая .gz.
func (s *Service) Serve(w http.ResponseWriter, r *http.Request, filename string) {
	filename = filepath.Base(filename)
	ct, ok := imageTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	f, err := os.Open(filepath.Join(s.UploadDir, filename+".gz"))
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer gz.Close()
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, gz); err != nil {
		logger.Debugf("fileserver serve %s: %v", filename, err)
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("upload cancelled: %w", err)
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, fmt.Errorf("write: %w", err)
			}
			total += int64(n)
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, fmt.Errorf("read: %w", readErr)
		}
	}
}
