package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	app "mri-classifier/internal/application"
)

// Options параметры HTTP-сервера.
type Options struct {
	Port           int
	RequestTimeout time.Duration
	MaxUploadBytes int64
	CORSOrigins    []string
}

// Server HTTP-интерфейс классификатора.
type Server struct {
	engine      *gin.Engine
	predictions *app.PredictionService
	opts        Options
	log         *zap.Logger
}

func NewServer(predictions *app.PredictionService, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}

	s := &Server{
		engine:      gin.New(),
		predictions: predictions,
		opts:        opts,
		log:         log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(
		requestID(),
		accessLog(s.log),
		recovery(s.log),
		cors(s.opts.CORSOrigins),
		timeout(s.opts.RequestTimeout),
	)

	s.engine.GET("/", s.root)
	s.engine.GET("/health", s.health)
	s.engine.POST("/predict", s.predict)
	s.engine.GET("/predictions", s.recent)
}

// Handler для тестов и встраивания.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run слушает порт до отмены ctx, затем корректно завершает соединения.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
