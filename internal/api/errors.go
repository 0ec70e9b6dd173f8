package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain"
)

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInputValidation, http.StatusUnprocessableEntity, "input_required"},
	{domain.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{domain.ErrArtifactNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrResultNotReady, http.StatusConflict, "result_not_ready"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_state"},
	{domain.ErrUnsupportedMedia, http.StatusBadRequest, "unsupported_media"},
	{domain.ErrUnsupportedOption, http.StatusBadRequest, "unsupported_option"},
	{domain.ErrConfiguration, http.StatusInternalServerError, "configuration_error"},
}

// respondError maps the domain error taxonomy to HTTP statuses
func respondError(c echo.Context, logger *zap.Logger, err error) error {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			if e.status >= http.StatusInternalServerError {
				logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.JSON(e.status, ErrorResponse{Error: e.code, Message: err.Error()})
		}
	}

	logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Something went wrong, please try again",
	})
}
