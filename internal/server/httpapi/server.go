package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/altchat/composer/internal/logging"
	"github.com/altchat/composer/internal/policy"
)

// Server runs the HTTP API with graceful shutdown.
type Server struct {
	addr   string
	engine *gin.Engine
	logger logging.Logger
}

func NewServer(addr string, logger logging.Logger, service UploadManager, uploadPolicy policy.UploadPolicy, secretKey string) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(logger))

	authed := engine.Group("/", AuthRequired([]byte(secretKey)))
	NewHandler(service, uploadPolicy, logger).Register(authed)

	return &Server{addr: addr, engine: engine, logger: logger}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info(ctx, "http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
