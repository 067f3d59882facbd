// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"time"

	"docuquery-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RequestLogger 是一个 Gin 中间件，用于记录请求日志。
// 上传请求携带整个 PDF，请求体只记录大小不记录内容。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestSize", c.Request.ContentLength,
			"responseSize", c.Writer.Size(),
		)
	}
}
