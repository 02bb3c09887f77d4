// Package handlers holds the gin handlers of the HTTP API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/pkg/errors"
)

// ErrorResponse is the standard error response body. Detail keeps the key
// the browser client already reads.
type ErrorResponse struct {
	Code   errors.ErrorCode `json:"code"`
	Detail string           `json:"detail"`
}

// writeAppError maps an error to its HTTP status. Server-side failures are
// logged and reported with the code's default message only.
func writeAppError(c *gin.Context, log logging.Logger, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.CodeInternal
	}
	status := errors.HTTPStatusForCode(code)

	detail := errors.DefaultMessageForCode(code)
	var ae *errors.AppError
	if status < http.StatusInternalServerError && errors.As(err, &ae) {
		detail = ae.Message
		if ae.Detail != "" {
			detail += ": " + ae.Detail
		}
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			logging.String("path", c.Request.URL.Path),
			logging.String("code", string(code)),
			logging.Err(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Detail: detail})
}

func badRequest(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errors.CodeInvalidParam, Detail: detail})
}

func orNop(log logging.Logger) logging.Logger {
	if log == nil {
		return logging.NewNopLogger()
	}
	return log
}
