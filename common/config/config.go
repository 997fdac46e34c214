package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ezlinkai/fal-studio/common/env"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var SystemName = "fal-studio"
var ServiceName = "fal-studio"
var InstanceId = uuid.New().String()[:8]

var Port = 3000

var DebugEnabled = strings.ToLower(os.Getenv("DEBUG")) == "true"

// FalKey 仅存在于服务端，永远不会下发到浏览器
var FalKey = ""

// 代理转发
var ProxyTimeout = 60 * time.Second
var ProxyUnwrapMode = UnwrapModeSniff
var FalTargetHosts = []string{"fal.ai", "fal.run", "fal.media"}

// FAL_TARGET_HOSTS=* 允许转发到任意主机
const AnyTargetHost = "*"

var RelayProxy = ""

const (
	UnwrapModeSniff    = "sniff"
	UnwrapModeExplicit = "explicit"
	UnwrapModeOff      = "off"
)

// 单个客户端 IP 的代理访问频率
var (
	ProxyRateLimitNum            = 600
	ProxyRateLimitDuration int64 = 60
)

// 为空时代理对所有来源开放；设置后需携带 HS256 签名的访问令牌
var ProxyAccessSecret = ""
var ProxyTokenTTL = 12 * time.Hour

var RateLimitKeyExpirationDuration = 20 * time.Minute

var RedisConnString = ""

var CatalogFile = ""

// 客户端（generate 命令）使用的代理地址与轮询间隔
var FalProxyURL = "http://localhost:3000/api/fal/proxy"
var PollInterval = 3 * time.Second

const (
	UploadBackendFal = "fal"
	UploadBackendR2  = "r2"
)

var UploadBackend = UploadBackendFal

var CfBucketFileName = ""
var CfFileAccessKey = ""
var CfFileSecretKey = ""
var CfFileEndpoint = ""
var CfFilePublicUrl = ""

var WebDir = ""

// 代理流量指标上报
var CloudWatchEnabled = false
var CloudWatchRegion = "us-west-1"
var CloudWatchNamespace = "FalStudio"
var CloudWatchFlushInterval = 60 * time.Second
var CloudWatchSampleInterval = 10 * time.Second

type settings struct {
	Port            int           `validate:"min=1,max=65535"`
	ProxyTimeout    time.Duration `validate:"gt=0"`
	ProxyUnwrapMode string        `validate:"oneof=sniff explicit off"`
	PollInterval    time.Duration `validate:"gt=0"`
	UploadBackend   string        `validate:"oneof=fal r2"`
	FalProxyURL     string        `validate:"omitempty,url"`
	RateLimitNum    int           `validate:"min=0"`
	ProxyTokenTTL   time.Duration `validate:"gt=0"`
	FlushInterval   time.Duration `validate:"gt=0"`
	SampleInterval  time.Duration `validate:"gt=0"`
}

// Load 在启动时调用一次，之后所有配置只读
func Load() error {
	Port = env.Int("PORT", Port)
	DebugEnabled = env.Bool("DEBUG", DebugEnabled)
	ServiceName = env.String("SERVICE_NAME", ServiceName)
	InstanceId = env.String("INSTANCE_ID", InstanceId)

	FalKey = env.String("FAL_KEY", FalKey)
	ProxyTimeout = time.Duration(env.Int("PROXY_TIMEOUT", int(ProxyTimeout/time.Second))) * time.Second
	ProxyUnwrapMode = strings.ToLower(env.String("PROXY_UNWRAP_MODE", ProxyUnwrapMode))
	FalTargetHosts = env.List("FAL_TARGET_HOSTS", FalTargetHosts)
	if len(FalTargetHosts) == 1 && FalTargetHosts[0] == AnyTargetHost {
		// 显式关闭白名单
		FalTargetHosts = nil
	}
	RelayProxy = env.String("RELAY_PROXY", RelayProxy)

	ProxyRateLimitNum = env.Int("PROXY_RATE_LIMIT", ProxyRateLimitNum)
	ProxyRateLimitDuration = int64(env.Int("PROXY_RATE_LIMIT_DURATION", int(ProxyRateLimitDuration)))
	RedisConnString = env.String("REDIS_CONN_STRING", RedisConnString)
	ProxyAccessSecret = env.String("PROXY_ACCESS_SECRET", ProxyAccessSecret)
	ProxyTokenTTL = time.Duration(env.Int("PROXY_TOKEN_TTL", int(ProxyTokenTTL/time.Second))) * time.Second

	CatalogFile = env.String("CATALOG_FILE", CatalogFile)
	FalProxyURL = env.String("FAL_PROXY_URL", FalProxyURL)
	PollInterval = time.Duration(env.Int("POLL_INTERVAL", int(PollInterval/time.Second))) * time.Second

	UploadBackend = strings.ToLower(env.String("UPLOAD_BACKEND", UploadBackend))
	CfBucketFileName = env.String("CF_BUCKET_FILE_NAME", CfBucketFileName)
	CfFileAccessKey = env.String("CF_FILE_ACCESS_KEY", CfFileAccessKey)
	CfFileSecretKey = env.String("CF_FILE_SECRET_KEY", CfFileSecretKey)
	CfFileEndpoint = env.String("CF_FILE_ENDPOINT", CfFileEndpoint)
	CfFilePublicUrl = strings.TrimSuffix(env.String("CF_FILE_PUBLIC_URL", CfFilePublicUrl), "/")

	WebDir = env.String("WEB_DIR", WebDir)

	CloudWatchEnabled = env.Bool("CLOUDWATCH_ENABLED", CloudWatchEnabled)
	CloudWatchRegion = env.String("CLOUDWATCH_REGION", CloudWatchRegion)
	CloudWatchNamespace = env.String("CLOUDWATCH_NAMESPACE", CloudWatchNamespace)
	CloudWatchFlushInterval = time.Duration(env.Int("CLOUDWATCH_FLUSH_INTERVAL", int(CloudWatchFlushInterval/time.Second))) * time.Second
	CloudWatchSampleInterval = time.Duration(env.Int("CLOUDWATCH_SAMPLE_INTERVAL", int(CloudWatchSampleInterval/time.Second))) * time.Second
	return Validate()
}

func Validate() error {
	s := settings{
		Port:            Port,
		ProxyTimeout:    ProxyTimeout,
		ProxyUnwrapMode: ProxyUnwrapMode,
		PollInterval:    PollInterval,
		UploadBackend:   UploadBackend,
		FalProxyURL:     FalProxyURL,
		RateLimitNum:    ProxyRateLimitNum,
		ProxyTokenTTL:   ProxyTokenTTL,
		FlushInterval:   CloudWatchFlushInterval,
		SampleInterval:  CloudWatchSampleInterval,
	}
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if UploadBackend == UploadBackendR2 {
		if CfFileAccessKey == "" || CfFileSecretKey == "" || CfBucketFileName == "" || CfFileEndpoint == "" {
			return fmt.Errorf("invalid configuration: UPLOAD_BACKEND=r2 requires CF_FILE_ACCESS_KEY, CF_FILE_SECRET_KEY, CF_BUCKET_FILE_NAME and CF_FILE_ENDPOINT")
		}
	}
	return nil
}
