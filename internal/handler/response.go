package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/dm-api/internal/service"
)

// ErrorResponse is the envelope every failed request gets.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func NewErrorResponse(status int, url string) ErrorResponse {
	return ErrorResponse{
		Status:  status,
		Message: http.StatusText(status) + ": " + url,
	}
}

// CreatedResponse is returned by both POST routes.
type CreatedResponse struct {
	Status   int    `json:"status"`
	Message  string `json:"message"`
	ID       string `json:"id"`
	Location string `json:"location"`
}

func writeError(c echo.Context, status int) error {
	return c.JSON(status, NewErrorResponse(status, requestURL(c)))
}

func writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return writeError(c, http.StatusBadRequest)
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, http.StatusNotFound)
	case errors.Is(err, service.ErrConflict):
		return writeError(c, http.StatusConflict)
	default:
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
		return writeError(c, http.StatusInternalServerError)
	}
}

func writeCreated(c echo.Context, id, location string) error {
	return c.JSON(http.StatusCreated, CreatedResponse{
		Status:   http.StatusCreated,
		Message:  "Created: " + requestURL(c),
		ID:       id,
		Location: location,
	})
}

// requestURL rebuilds the absolute URL the client asked for.
func requestURL(c echo.Context) string {
	req := c.Request()
	return c.Scheme() + "://" + req.Host + req.URL.RequestURI()
}
