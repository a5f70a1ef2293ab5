package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Creecly/cleaninvest/internal/errors"
	"github.com/Creecly/cleaninvest/internal/logger"
)

// ErrorHandler renders the last error attached to the context with c.Error as
// {"error": {"code", "message"}}. Binding errors become INVALID_INPUT, and
// anything that is not an AppError is logged and reported as INTERNAL_ERROR.
// A handler that already wrote a response keeps it.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}

		appErr := toAppError(last)
		if appErr.StatusCode >= http.StatusInternalServerError {
			fields := []interface{}{
				"code", appErr.Code,
				"request_id", RequestID(c),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			}
			if cause := errors.Unwrap(appErr); cause != nil {
				fields = append(fields, "error", cause.Error())
			} else if appErr != last.Err {
				fields = append(fields, "error", last.Err.Error())
			}
			logger.Get().Errorw("request failed", fields...)
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(appErr.StatusCode, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
	}
}

func toAppError(e *gin.Error) *apperrors.AppError {
	var appErr *apperrors.AppError
	switch {
	case errors.As(e.Err, &appErr):
		return appErr
	case e.IsType(gin.ErrorTypeBind):
		return apperrors.WithMessage(apperrors.ErrInvalidInput, e.Err.Error())
	default:
		return apperrors.ErrInternalServer
	}
}
