package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/config"
	"storefront/internal/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	e      *echo.Echo
	addr   string
	logger *zap.Logger
}

// Newは共通ミドルウェアとルートを登録したechoを持つ
func New(cfg config.Config, h Handlers, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	//アップロード上限 + multipartのヘッダー分
	e.Use(echomw.BodyLimit(strconv.FormatInt(cfg.MaxUploadBytes+(1<<20), 10) + "B"))

	RegisterRoutes(e, cfg, h)

	return &Server{e: e, addr: listenAddr(cfg.Port), logger: logger}
}

// Handlerはテスト用
func (s *Server) Handler() http.Handler {
	return s.e
}

// Runはctxが終わるまで待ち、終わったら停止する
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.addr))
		if err := s.e.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.e.Shutdown(shutdownCtx)
}

func listenAddr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] != ':' {
		return ":" + port
	}
	return port
}
