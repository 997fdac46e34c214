package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ezlinkai/fal-studio/common/logger"
	"github.com/pkg/errors"
)

// Client 通过服务端代理访问 fal 队列接口，自身不持有任何凭证
type Client struct {
	ProxyURL   string
	QueueURL   string
	HTTPClient *http.Client
	Uploader   Uploader
	// ProxyToken 代理的访问令牌，只对代理本身有效
	ProxyToken string
}

func NewClient(proxyURL string) *Client {
	c := &Client{
		ProxyURL:   proxyURL,
		QueueURL:   DefaultQueueURL,
		HTTPClient: &http.Client{Timeout: DefaultCallTimeout},
	}
	c.Uploader = NewStorageUploader(c)
	return c
}

type SubscribeOptions struct {
	PollInterval  time.Duration
	Logs          bool
	OnEnqueue     func(requestID string)
	OnQueueUpdate func(status *QueueStatus)
}

// Submit 上传文件参数后提交任务，返回任务句柄
func (c *Client) Submit(ctx context.Context, modelID string, input map[string]any) (*QueueHandle, error) {
	if _, err := parseEndpoint(modelID); err != nil {
		return nil, err
	}
	resolved, err := c.resolveFiles(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "upload files failed")
	}
	body, err := c.Dispatch(ctx, http.MethodPost, c.QueueURL+"/"+modelID, resolved)
	if err != nil {
		return nil, errors.Wrap(err, "submit request failed")
	}
	var handle QueueHandle
	if err := json.Unmarshal(body, &handle); err != nil {
		return nil, errors.Wrap(err, "decode submit response failed")
	}
	if handle.RequestID == "" {
		return nil, fmt.Errorf("submit response has no request_id: %s", string(body))
	}
	return &handle, nil
}

func (c *Client) Status(ctx context.Context, modelID string, handle *QueueHandle, logs bool) (*QueueStatus, error) {
	target, err := c.statusURL(modelID, handle)
	if err != nil {
		return nil, err
	}
	if logs {
		target = withQuery(target, "logs", "1")
	}
	body, err := c.Dispatch(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "status request failed")
	}
	var status QueueStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, errors.Wrap(err, "decode status response failed")
	}
	return &status, nil
}

func (c *Client) Result(ctx context.Context, modelID string, handle *QueueHandle) (*Result, error) {
	target, err := c.responseURL(modelID, handle)
	if err != nil {
		return nil, err
	}
	body, err := c.Dispatch(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "result request failed")
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errors.Wrap(err, "decode result failed")
	}
	return &Result{Data: data, RequestID: handle.RequestID}, nil
}

func (c *Client) Cancel(ctx context.Context, modelID string, handle *QueueHandle) error {
	target := handle.CancelURL
	if target == "" {
		base, err := c.requestsURL(modelID, handle.RequestID)
		if err != nil {
			return err
		}
		target = base + "/cancel"
	}
	_, err := c.Dispatch(ctx, http.MethodPut, target, nil)
	return err
}

// Subscribe 提交任务并按固定间隔轮询，直到完成、失败或 ctx 被取消
func (c *Client) Subscribe(ctx context.Context, modelID string, input map[string]any, opts SubscribeOptions) (*Result, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	handle, err := c.Submit(ctx, modelID, input)
	if err != nil {
		return nil, err
	}
	logger.Debugf(ctx, "fal request %s enqueued for %s", handle.RequestID, modelID)
	if opts.OnEnqueue != nil {
		opts.OnEnqueue(handle.RequestID)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := c.Status(ctx, modelID, handle, opts.Logs)
		if err != nil {
			if ctx.Err() != nil {
				c.abandon(ctx, modelID, handle)
				return nil, ctx.Err()
			}
			return nil, err
		}
		if opts.OnQueueUpdate != nil {
			opts.OnQueueUpdate(status)
		}
		if status.Error != "" {
			return nil, &ApiError{StatusCode: http.StatusOK, Message: status.Error}
		}
		if status.Status == StatusCompleted {
			break
		}
		select {
		case <-ctx.Done():
			c.abandon(ctx, modelID, handle)
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return c.Result(ctx, modelID, handle)
}

// abandon 尽力通知上游取消任务，失败只记录日志
func (c *Client) abandon(ctx context.Context, modelID string, handle *QueueHandle) {
	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Cancel(cancelCtx, modelID, handle); err != nil {
		logger.Warnf(ctx, "cancel fal request %s failed: %s", handle.RequestID, err.Error())
	}
}

// Dispatch 把一次调用包装后发给代理；JSON 请求体统一放进 input 信封并显式声明
func (c *Client) Dispatch(ctx context.Context, method string, target string, payload any) ([]byte, error) {
	if c.ProxyURL == "" {
		return nil, errors.New("proxy url is not configured")
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(map[string]any{"input": payload})
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.ProxyURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(TargetURLHeader, target)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(EnvelopeHeader, EnvelopeInputV1)
	}
	if c.ProxyToken != "" {
		req.Header.Set(ProxyTokenHeader, c.ProxyToken)
	}
	if id, ok := ctx.Value(logger.RequestIdKey).(string); ok && id != "" {
		req.Header.Set(logger.RequestIdKey, id)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newApiError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

type endpoint struct {
	Owner string
	Alias string
	Path  string
}

// parseEndpoint 拆分 "owner/alias[/path...]" 形式的模型标识
func parseEndpoint(modelID string) (*endpoint, error) {
	parts := strings.Split(strings.Trim(modelID, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid model id: %q", modelID)
	}
	return &endpoint{
		Owner: parts[0],
		Alias: parts[1],
		Path:  strings.Join(parts[2:], "/"),
	}, nil
}

func (c *Client) requestsURL(modelID string, requestID string) (string, error) {
	ep, err := parseEndpoint(modelID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s/requests/%s", c.QueueURL, ep.Owner, ep.Alias, requestID), nil
}

func (c *Client) statusURL(modelID string, handle *QueueHandle) (string, error) {
	if handle.StatusURL != "" {
		return handle.StatusURL, nil
	}
	base, err := c.requestsURL(modelID, handle.RequestID)
	if err != nil {
		return "", err
	}
	return base + "/status", nil
}

func (c *Client) responseURL(modelID string, handle *QueueHandle) (string, error) {
	if handle.ResponseURL != "" {
		return handle.ResponseURL, nil
	}
	return c.requestsURL(modelID, handle.RequestID)
}

func withQuery(target string, key string, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
