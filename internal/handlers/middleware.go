package handlers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/davecgh/go-spew/spew"
	"github.com/gin-gonic/gin"
	"github.com/parcelverse/marketplace-api/internal/logger"
	"github.com/parcelverse/marketplace-api/internal/types"
	"go.uber.org/zap"
)

// RequireAdminKey guards administrative routes with the configured
// shared-secret header
func RequireAdminKey(adminAPIKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminAPIKey == "" || c.GetHeader("X-Admin-Key") != adminAPIKey {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Error: types.ErrNotAuthorized.Message,
				Code:  types.ErrNotAuthorized.Code,
			})
			return
		}
		c.Next()
	}
}

// LogRequest dumps request bodies in non-release mode
func LogRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err == nil {
				c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
				logger.Debug("Incoming request",
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.String("body", spew.Sdump(string(body))),
				)
			}
		}
		c.Next()
	}
}
