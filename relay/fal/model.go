package fal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// File 是尚未上传的二进制参数，提交前会被替换成存储地址
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type QueueHandle struct {
	RequestID   string `json:"request_id"`
	ResponseURL string `json:"response_url,omitempty"`
	StatusURL   string `json:"status_url,omitempty"`
	CancelURL   string `json:"cancel_url,omitempty"`
}

type LogEntry struct {
	Message   string `json:"message"`
	Level     string `json:"level,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type QueueStatus struct {
	Status        string     `json:"status"`
	QueuePosition *int       `json:"queue_position,omitempty"`
	Logs          []LogEntry `json:"logs,omitempty"`
	ResponseURL   string     `json:"response_url,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Result 与 JS 客户端一致：真实结果放在 data 下
type Result struct {
	Data      any    `json:"data"`
	RequestID string `json:"requestId"`
}

func (r *Result) Envelope() map[string]any {
	return map[string]any{
		"data":      r.Data,
		"requestId": r.RequestID,
	}
}

var ErrProxyTimeout = errors.New("代理请求超时")

type ApiError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

func (e *ApiError) Unwrap() error {
	if e.StatusCode == 504 {
		return ErrProxyTimeout
	}
	return nil
}

type errorResponse struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// newApiError 从上游响应中尽量提取可读的错误信息
func newApiError(statusCode int, body []byte) *ApiError {
	apiErr := &ApiError{StatusCode: statusCode, Body: body}
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		apiErr.Message = detailMessage(resp.Detail)
		if apiErr.Message == "" {
			apiErr.Message = resp.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = resp.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("HTTP %d", statusCode)
	}
	return apiErr
}

// detail 可能是字符串，也可能是 [{"msg": "..."}] 形式的校验错误列表
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		var msgs []string
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(raw)
}
