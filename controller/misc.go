package controller

import (
	"net/http"
	"runtime"

	"github.com/ezlinkai/fal-studio/common"
	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/gin-gonic/gin"
)

func GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data": gin.H{
			"version":            common.Version,
			"start_time":         common.StartTime,
			"system_name":        config.SystemName,
			"credential_ready":   config.FalKey != "",
			"unwrap_mode":        config.ProxyUnwrapMode,
			"target_hosts":       config.FalTargetHosts,
			"upload_backend":     config.UploadBackend,
			"poll_interval_ms":   config.PollInterval.Milliseconds(),
			"proxy_timeout_ms":   config.ProxyTimeout.Milliseconds(),
			"redis_rate_limiter": common.RedisEnabled && common.RDB != nil,
		},
	})
}

// GetHealth 返回协程数与内存占用
func GetHealth(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"goroutines": runtime.NumGoroutine(),
		"memory": gin.H{
			"alloc_mb":       m.Alloc / 1024 / 1024,
			"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
			"sys_mb":         m.Sys / 1024 / 1024,
			"num_gc":         m.NumGC,
		},
	})
}
