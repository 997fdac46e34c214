package middleware

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/common/logger"
	"github.com/ezlinkai/fal-studio/relay/fal"
	"github.com/gin-gonic/gin"
)

// AccessLogEntry HTTP 访问日志结构（JSON 格式）
type AccessLogEntry struct {
	Ts         string `json:"ts"`
	Level      string `json:"level"`
	RequestId  string `json:"request_id"`
	Status     int    `json:"status"`
	LatencyMs  int64  `json:"latency_ms"`
	ClientIP   string `json:"client_ip"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	TargetHost string `json:"target_host,omitempty"`
	Service    string `json:"service"`
	Instance   string `json:"instance"`
}

func SetUpLogger(server *gin.Engine) {
	server.Use(gin.LoggerWithFormatter(formatAccessLog))
}

// formatAccessLog 轮询产生大量 2xx，只记录异常请求
func formatAccessLog(param gin.LogFormatterParams) string {
	if param.StatusCode >= 200 && param.StatusCode < 300 && !config.DebugEnabled {
		return ""
	}

	var requestID string
	if param.Keys != nil {
		if v, ok := param.Keys[logger.RequestIdKey]; ok {
			requestID, _ = v.(string)
		}
	}

	level := "info"
	if param.StatusCode >= 500 {
		level = "error"
	} else if param.StatusCode >= 400 {
		level = "warn"
	}

	entry := AccessLogEntry{
		Ts:        param.TimeStamp.Format(time.RFC3339Nano),
		Level:     level,
		RequestId: requestID,
		Status:    param.StatusCode,
		LatencyMs: param.Latency.Milliseconds(),
		ClientIP:  param.ClientIP,
		Method:    param.Method,
		Path:      param.Path,
		Service:   config.ServiceName,
		Instance:  config.InstanceId,
	}
	if param.Request != nil {
		if target, err := url.Parse(param.Request.Header.Get(fal.TargetURLHeader)); err == nil {
			entry.TargetHost = target.Host
		}
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		return `{"level":"error","msg":"access log marshal error"}` + "\n"
	}
	return string(jsonBytes) + "\n"
}
