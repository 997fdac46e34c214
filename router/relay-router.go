package router

import (
	"github.com/ezlinkai/fal-studio/middleware"
	"github.com/ezlinkai/fal-studio/relay/proxy"
	"github.com/gin-gonic/gin"
)

// SetRelayRouter 代理不经过 gzip，上游响应需要原样返回
func SetRelayRouter(router *gin.Engine, forwarder *proxy.Forwarder) {
	falRouter := router.Group("/api/fal")
	falRouter.Use(middleware.ProxyMetrics(), middleware.RelayPanicRecover(), middleware.ProxyRateLimit(), middleware.ProxyAuth())
	{
		falRouter.GET("/proxy", forwarder.Relay)
		falRouter.POST("/proxy", forwarder.Relay)
		falRouter.PUT("/proxy", forwarder.Relay)
	}
}
