// Package migrations содержит встроенную SQL-схему data-сервиса.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/busqai/internal/logger"
)

// Files — все .sql файлы каталога; применяются по имени (001, 002, ...).
//go:embed *.sql
var Files embed.FS

// Execer — pgxpool.Pool, pgx.Conn или pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Apply выполняет встроенные .sql по порядку имён. Скрипты идемпотентны.
func Apply(ctx context.Context, db Execer) error {
	entries, err := fs.ReadDir(Files, ".")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := fs.ReadFile(Files, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("run %s: %w", name, err)
		}
		logger.Debugf("migration %s applied", name)
	}
	return nil
}
