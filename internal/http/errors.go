package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const codeUnauthenticated = "UNAUTHENTICATED"

// errorHandler writes every handler error as an ErrorResponse. Classified
// errors keep their message; anything else is logged and reported as an
// internal error.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := s.classify(err, c)
	c.Set(errorCodeKey, body.Code)
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Error: body})
	}
	if err != nil {
		s.logger.Warn(c.Request().Context(), "writing error response failed", zap.Error(err))
	}
}

func (s *Server) classify(err error, c echo.Context) (int, ErrorBody) {
	ctx := c.Request().Context()

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		status := apperr.HTTPStatus(appErr.Kind)
		if status >= http.StatusInternalServerError {
			s.logger.Error(ctx, "request failed", zap.String("op", appErr.Op), zap.Error(err))
		} else {
			s.logger.Debug(ctx, "request rejected", zap.String("op", appErr.Op), zap.Error(err))
		}
		return status, ErrorBody{Code: string(appErr.Kind), Message: appErr.Message}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, ErrorBody{Code: codeForStatus(httpErr.Code), Message: fmt.Sprint(httpErr.Message)}
	}

	s.logger.Error(ctx, "unhandled request error", zap.Error(err))
	return http.StatusInternalServerError, ErrorBody{Code: string(apperr.KindInternal), Message: "Internal server error"}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(apperr.KindValidation)
	case http.StatusUnauthorized:
		return codeUnauthenticated
	case http.StatusNotFound:
		return string(apperr.KindNotFound)
	case http.StatusConflict:
		return string(apperr.KindConflict)
	case http.StatusServiceUnavailable:
		return string(apperr.KindUnavailable)
	default:
		if status >= http.StatusInternalServerError {
			return string(apperr.KindInternal)
		}
		return http.StatusText(status)
	}
}
