package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shinyyama/dm-api/internal/metrics"
)

const unmatchedRoute = "unmatched"

// RequestMetrics records a request counter and a latency histogram per route
// template, so /users/alice/dms and /users/bob/dms share one series.
type RequestMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewRequestMetrics() *RequestMetrics {
	return &RequestMetrics{requests: metrics.HTTPRequests, duration: metrics.HTTPDuration}
}

func (m *RequestMetrics) Handle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		route := c.Path()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request().Method
		m.requests.WithLabelValues(route, method, strconv.Itoa(statusOf(c, err))).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
		return err
	}
}

// statusOf predicts the status the error handler will write, since it runs
// after the middleware chain returns.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
