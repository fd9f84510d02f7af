package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the JSON error payload shared by every API route.
type ErrorResponse struct {
	Message ErrorMessage `json:"message"`
}

type ErrorMessage struct {
	Reason string `json:"reason"`
	Advice string `json:"advice,omitempty"`
}

func newAPIError(code int, reason, advice string) *echo.HTTPError {
	return echo.NewHTTPError(code, ErrorResponse{Message: ErrorMessage{Reason: reason, Advice: advice}})
}

func badRequest(reason string) *echo.HTTPError {
	return newAPIError(http.StatusBadRequest, reason, "")
}

func notFound(reason string) *echo.HTTPError {
	return newAPIError(http.StatusNotFound, reason, "")
}

func serviceUnavailable(reason, advice string) *echo.HTTPError {
	return newAPIError(http.StatusServiceUnavailable, reason, advice)
}

func internalServerError(err error) *echo.HTTPError {
	return newAPIError(http.StatusInternalServerError, "internal server error", "").SetInternal(err)
}
