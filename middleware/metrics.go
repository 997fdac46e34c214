package middleware

import (
	"time"

	"github.com/ezlinkai/fal-studio/monitor"
	"github.com/gin-gonic/gin"
)

// ProxyMetrics 放在代理路由最外层，限流与鉴权拒绝也计入
func ProxyMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		monitor.ProxyRequestStarted()
		defer monitor.ProxyRequestFinished()
		c.Next()
		monitor.RecordProxyRequest(time.Since(start), c.Writer.Status())
	}
}
