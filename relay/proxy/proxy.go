package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ezlinkai/fal-studio/common"
	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/common/logger"
	"github.com/ezlinkai/fal-studio/relay/fal"
	"github.com/gin-gonic/gin"
)

const (
	MsgMissingTarget     = "错误：缺少 x-fal-target-url 头"
	MsgMissingCredential = "错误：服务器未配置 FAL_KEY"
	MsgInvalidJSON       = "错误：无法解析JSON"
	MsgInvalidTarget     = "错误：无效的 x-fal-target-url"
	MsgTargetNotAllowed  = "错误：目标地址不被允许"
	MsgInvalidEnvelope   = "错误：不支持的 x-fal-envelope"
	MsgTimeout           = "代理请求超时"
	MsgFailed            = "代理请求失败"
)

// 逐跳头与代理私有头，不转发给上游
var strippedRequestHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
	fal.TargetURLHeader,
	fal.EnvelopeHeader,
	fal.ProxyTokenHeader,
}

var strippedResponseHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type Options struct {
	Credential   string
	Timeout      time.Duration
	UnwrapMode   string
	AllowedHosts []string
	Client       *http.Client
}

// OptionsFromConfig 在启动时读取一次配置
func OptionsFromConfig(client *http.Client) Options {
	return Options{
		Credential:   config.FalKey,
		Timeout:      config.ProxyTimeout,
		UnwrapMode:   config.ProxyUnwrapMode,
		AllowedHosts: config.FalTargetHosts,
		Client:       client,
	}
}

// Forwarder 是无状态的单次转发器：注入凭证、改写请求头、带超时转发，并原样回传上游响应
type Forwarder struct {
	opts Options
}

func New(opts Options) *Forwarder {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UnwrapMode == "" {
		opts.UnwrapMode = config.UnwrapModeSniff
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &Forwarder{opts: opts}
}

// Relay 同时服务 GET 与 POST（以及取消任务用的 PUT），逻辑完全相同
func (f *Forwarder) Relay(c *gin.Context) {
	ctx := c.Request.Context()
	targetURL := c.GetHeader(fal.TargetURLHeader)
	if targetURL == "" {
		c.String(http.StatusBadRequest, MsgMissingTarget)
		return
	}
	if f.opts.Credential == "" {
		logger.Error(ctx, "FAL_KEY is not configured")
		c.String(http.StatusInternalServerError, MsgMissingCredential)
		return
	}
	target, err := url.Parse(targetURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		c.String(http.StatusBadRequest, MsgInvalidTarget)
		return
	}
	if !f.hostAllowed(target.Hostname()) {
		logger.Warnf(ctx, "proxy target host not allowed: %s", target.Host)
		c.String(http.StatusForbidden, MsgTargetNotAllowed)
		return
	}

	contentType := c.GetHeader("Content-Type")
	isJSON := common.IsJSONContentType(contentType)
	var body io.Reader
	contentLength := c.Request.ContentLength
	if isJSON {
		data, status, msg := f.rewriteJSONBody(c)
		if msg != "" {
			c.String(status, msg)
			return
		}
		if data != nil {
			body = bytes.NewReader(data)
		}
		contentLength = int64(len(data))
	} else if c.Request.Body != nil && c.Request.Body != http.NoBody {
		body = c.Request.Body
	}

	forwardCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(forwardCtx, c.Request.Method, target.String(), body)
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	if body != nil {
		req.ContentLength = contentLength
	}
	req.Header = f.rewriteHeaders(c.Request.Header, isJSON)

	logger.Debugf(ctx, "proxy %s %s", req.Method, target.String())
	resp, err := f.opts.Client.Do(req)
	if err != nil {
		if isTimeout(forwardCtx, err) {
			logger.Errorf(ctx, "proxy request to %s timed out after %s", target.Host, f.opts.Timeout)
			c.String(http.StatusGatewayTimeout, MsgTimeout)
			return
		}
		logger.Errorf(ctx, "proxy request failed: %s", err.Error())
		msg := err.Error()
		if msg == "" {
			msg = MsgFailed
		}
		c.String(http.StatusInternalServerError, msg)
		return
	}
	defer resp.Body.Close()

	// 上游头覆盖中间件已写入的同名头（如 CORS）
	header := c.Writer.Header()
	for key, values := range resp.Header {
		header.Del(key)
		for _, value := range values {
			header.Add(key, value)
		}
	}
	for _, key := range strippedResponseHeaders {
		header.Del(key)
	}
	c.Status(resp.StatusCode)
	c.Writer.WriteHeaderNow()
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		logger.Warnf(ctx, "relay response body interrupted: %s", err.Error())
	}
}

// rewriteJSONBody 解析 JSON 请求体并按约定解包 input；返回 (新请求体, 错误状态码, 错误信息)
func (f *Forwarder) rewriteJSONBody(c *gin.Context) ([]byte, int, string) {
	raw, err := common.GetRequestBody(c)
	if err != nil {
		return nil, http.StatusBadRequest, MsgInvalidJSON
	}
	envelope := c.GetHeader(fal.EnvelopeHeader)
	if envelope != "" && envelope != fal.EnvelopeInputV1 {
		return nil, http.StatusBadRequest, MsgInvalidEnvelope
	}
	// 轮询请求常带 JSON Content-Type 但没有请求体
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, 0, ""
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, http.StatusBadRequest, MsgInvalidJSON
	}
	if decoder.More() {
		return nil, http.StatusBadRequest, MsgInvalidJSON
	}

	unwrapped, ok := Unwrap(payload, envelope != "", f.opts.UnwrapMode)
	if !ok {
		return nil, http.StatusBadRequest, MsgInvalidJSON
	}
	data, err := marshal(unwrapped)
	if err != nil {
		return nil, http.StatusBadRequest, MsgInvalidJSON
	}
	return data, 0, ""
}

// Unwrap 实现 input 信封约定：
// 带显式信封标记时必须存在 input 对象；未标记时仅在 sniff 模式下按形状解包；off 模式从不解包。
// 第二个返回值为 false 表示声明了信封却没有 input 对象。
func Unwrap(payload any, marked bool, mode string) (any, bool) {
	if mode == config.UnwrapModeOff {
		return payload, true
	}
	obj, isObject := payload.(map[string]any)
	var input map[string]any
	if isObject {
		input, _ = obj["input"].(map[string]any)
	}
	if marked {
		if input == nil {
			return nil, false
		}
		return input, true
	}
	if mode == config.UnwrapModeSniff && input != nil {
		return input, true
	}
	return payload, true
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (f *Forwarder) rewriteHeaders(in http.Header, isJSON bool) http.Header {
	out := in.Clone()
	if out == nil {
		out = http.Header{}
	}
	// Connection 中列出的头同样是逐跳头
	for _, value := range out.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out.Del(name)
			}
		}
	}
	for _, key := range strippedRequestHeaders {
		out.Del(key)
	}
	out.Del("Host")
	out.Set("Authorization", fmt.Sprintf("Key %s", f.opts.Credential))
	if isJSON {
		out.Set("Content-Type", "application/json")
	}
	return out
}

func (f *Forwarder) hostAllowed(host string) bool {
	if len(f.opts.AllowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, allowed := range f.opts.AllowedHosts {
		allowed = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(allowed), "."))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
