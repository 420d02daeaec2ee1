// Package server initializes and runs the upload server. It wires the
// PostgreSQL-backed upload store, the S3 presign service, and the HTTP API,
// and handles graceful shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/altchat/composer/internal/logging"
	"github.com/altchat/composer/internal/server/config"
	"github.com/altchat/composer/internal/server/httpapi"
	"github.com/altchat/composer/internal/server/services"
	"github.com/altchat/composer/internal/server/shared/db"
)

// stalePurgeInterval is how often abandoned pending uploads are swept.
// Uploads pending longer than stalePurgeAge were never confirmed and their
// presigned URLs have long expired.
const (
	stalePurgeInterval = 1 * time.Hour
	stalePurgeAge      = 24 * time.Hour
)

type App struct {
	config        *config.Config
	logger        logging.Logger
	uploadService *services.UploadService
}

func NewApp(c *config.Config) (*App, error) {

	zl, err := logging.NewRotatingZap(c.LogPath, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}
	logger := logging.NewZapLogger(zl)

	m, err := db.NewPostgresRepositoryManager(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	us := services.NewUploadService(m.Conn(), m, c)

	return &App{config: c, logger: logger, uploadService: us}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger, app.uploadService, app.config.Policy, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startStalePurge(ctx context.Context) {
	ticker := time.NewTicker(stalePurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.uploadService.PurgeStale(ctx, stalePurgeAge)
			if err != nil {
				app.logger.Warn(ctx, "stale upload purge failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "purged stale uploads", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startStalePurge(ctx)
	}()

	wg.Wait()

}
