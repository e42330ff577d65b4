package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shinyyama/dm-api/internal/handler"
	appmw "github.com/shinyyama/dm-api/internal/middleware"
	"github.com/shinyyama/dm-api/internal/service"
)

type Server struct {
	e      *echo.Echo
	logger *slog.Logger
}

func New(svc service.MessageService, logger *slog.Logger, sha, buildTime string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.Logger())
	e.Use(appmw.NewRequestMetrics().Handle)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin,
	}))

	msgHandler := handler.NewMessageHandler(svc)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    sha,
			"build_time": buildTime,
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/users/:username/dms", msgHandler.ListDMs)
	e.POST("/users/:username/dms", msgHandler.SendDM)
	e.GET("/dms/:id/replies", msgHandler.ListReplies)
	e.POST("/dms/:id/replies", msgHandler.Reply)

	return &Server{e: e, logger: logger}
}

func (s *Server) Start(addr string) error {
	s.logger.Info("listening", slog.String("addr", addr))
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// errorHandler writes every error that escapes a handler, including unmatched
// routes, in the {status, message} envelope.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		} else {
			logger.ErrorContext(c.Request().Context(), "unhandled error",
				slog.String("path", c.Request().URL.Path),
				slog.Any("err", err))
		}

		resp := handler.NewErrorResponse(status, requestURL(c))
		if status == http.StatusNotFound {
			resp.Message = "Route Not Found: " + requestURL(c)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, resp)
		}
		if err != nil {
			logger.Error("write error response", slog.Any("err", err))
		}
	}
}

func requestURL(c echo.Context) string {
	req := c.Request()
	return c.Scheme() + "://" + req.Host + req.URL.RequestURI()
}

func allowOrigin(origin string) (bool, error) {
	low := strings.ToLower(origin)
	if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
		strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
		return true, nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false, nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, nil
	}
	return strings.HasSuffix(u.Hostname(), "vercel.app"), nil
}
