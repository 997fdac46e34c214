package fal

import "time"

const (
	// 代理协议头
	TargetURLHeader = "x-fal-target-url"
	EnvelopeHeader  = "x-fal-envelope"
	EnvelopeInputV1 = "input/v1"
	// 开启访问令牌时，代理只接受携带该头的请求
	ProxyTokenHeader = "x-fal-proxy-token"

	DefaultQueueURL   = "https://queue.fal.run"
	DefaultStorageURL = "https://rest.alpha.fal.ai"

	DefaultPollInterval = 3 * time.Second
	DefaultCallTimeout  = 90 * time.Second
)

// 队列状态
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)
