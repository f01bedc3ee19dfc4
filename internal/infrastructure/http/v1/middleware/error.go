package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"commesse/internal/core/apperror"
	"commesse/pkg/logger"
)

// RetryAfterSeconds is sent with BUSY responses.
const RetryAfterSeconds = 2

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				log.WithContext(c.Request.Context()).Errorw("request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			if appErr.Retryable {
				c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
			}
			c.JSON(appErr.HTTPStatus, gin.H{
				"code":      appErr.Code,
				"message":   appErr.Message,
				"details":   appErr.Details,
				"retryable": appErr.Retryable,
			})
			return
		}

		log.WithContext(c.Request.Context()).Errorw("unhandled error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": map[string]any{
				"request_id": c.GetString("request_id"),
			},
		})
	}
}
