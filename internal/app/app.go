// Package app wires configuration into a running BauLot instance: database,
// migrations, photo storage, calendar publishing and the HTTP handler.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"baulot/internal/config"
	"baulot/internal/db"
	"baulot/internal/engine"
	"baulot/internal/export"
	"baulot/internal/migrate"
	"baulot/internal/ratelimit"
	"baulot/internal/server"
	"baulot/internal/storage"
)

// App holds the services built from one configuration.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Store  storage.Store
	Engine engine.Engine
	Logger *slog.Logger
}

// Open connects the database, applies migrations and builds the engine.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info("store initialized", "path", cfg.Database.Path)

	st, err := storage.New(cfg.Storage)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if cfg.Storage.Driver == "" {
		logger.Warn("photo storage disabled")
	} else {
		logger.Info("photo storage initialized", "driver", cfg.Storage.Driver)
	}

	e := engine.New(conn, st)
	e.Logger = logger
	e.PhotoBaseURL = cfg.Server.BasePath
	if cfg.Storage.MaxPhotoSize > 0 {
		e.MaxPhotoSize = cfg.Storage.MaxPhotoSize
	}
	if cfg.Calendar.CredentialsFile != "" {
		cal, err := export.NewGoogleCalendar(ctx, cfg.Calendar)
		if err != nil {
			conn.Close()
			return nil, err
		}
		e.Calendar = cal
		logger.Info("calendar publishing enabled", "calendar_id", cfg.Calendar.CalendarID)
	}
	return &App{Config: cfg, DB: conn, Store: st, Engine: e, Logger: logger}, nil
}

// Handler builds the HTTP API for the app's configuration.
func (a *App) Handler() (http.Handler, error) {
	cfg := a.Config
	sc := server.Config{
		Engine:   a.Engine,
		BasePath: cfg.Server.BasePath,
		Auth: server.AuthConfig{
			JWTSecret: cfg.Auth.JWTSecret,
			Issuer:    cfg.Auth.Issuer,
			TokenTTL:  cfg.Auth.TokenTTL.Std(),
		},
		LoginLimit:  limiter(cfg.RateLimit.Login),
		UploadLimit: limiter(cfg.RateLimit.Upload),
		Logger:      a.Logger,
	}
	h, err := server.New(sc)
	if err != nil {
		return nil, fmt.Errorf("build api: %w", err)
	}
	return h, nil
}

func (a *App) Close() error {
	if c, ok := a.Store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.Logger.Warn("close photo storage", "error", err)
		}
	}
	return a.DB.Close()
}

func limiter(l config.Limit) *ratelimit.Limiter {
	if l.Rate <= 0 || l.Every <= 0 {
		return nil
	}
	return ratelimit.New(l.Rate, l.Every.Std(), l.Burst)
}

// NewLogger returns a JSON slog logger writing to w at level.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLogLevel(level)}))
}

func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
