// Package storage holds the durable backends for serialized playlists. Every
// backend stores opaque bytes under a playlist id.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const sqliteFile = "playlists.db"

// Backend is a Store that owns resources which must be released.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
	io.Closer
}

// Backend names accepted by Open.
const (
	KindFile   = "file"
	KindRedis  = "redis"
	KindBadger = "badger"
	KindSQLite = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Kind string
	// Path is the data directory of the file, badger and sqlite backends.
	Path      string
	RedisAddr string
}

// Open opens the backend named by cfg.Kind.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (Backend, error) {
	switch strings.ToLower(cfg.Kind) {
	case KindFile:
		return NewFileStore(cfg.Path)
	case KindRedis:
		return NewRedisStore(ctx, RedisConfig{Addr: cfg.RedisAddr}, log)
	case KindBadger:
		return OpenBadgerStore(cfg.Path)
	case KindSQLite:
		if cfg.Path == "" {
			return nil, errors.New("sqlite: empty path")
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create %s: %w", cfg.Path, err)
		}
		return OpenSQLiteStore(ctx, filepath.Join(cfg.Path, sqliteFile))
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Kind)
	}
}
