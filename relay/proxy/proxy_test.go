package proxy

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/relay/fal"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type capturedRequest struct {
	Method string
	Header http.Header
	Body   []byte
	Host   string
}

// newUpstream 记录收到的请求并用 handler 作答
func newUpstream(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *capturedRequest) {
	captured := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured.Method = r.Method
		captured.Header = r.Header.Clone()
		captured.Body = body
		captured.Host = r.Host
		if handler != nil {
			handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"request_id":"req-1"}`))
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func newEngine(opts Options) *gin.Engine {
	forwarder := New(opts)
	engine := gin.New()
	engine.GET("/api/fal/proxy", forwarder.Relay)
	engine.POST("/api/fal/proxy", forwarder.Relay)
	engine.PUT("/api/fal/proxy", forwarder.Relay)
	return engine
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func defaultOptions() Options {
	return Options{Credential: "secret-key", Timeout: 2 * time.Second, UnwrapMode: config.UnwrapModeSniff}
}

func TestRelayMissingTargetHeader(t *testing.T) {
	engine := newEngine(defaultOptions())
	req := httptest.NewRequest(http.MethodPost, "/api/fal/proxy", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	w := serve(engine, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "错误：缺少 x-fal-target-url 头", w.Body.String())
}

func TestRelayMissingCredential(t *testing.T) {
	opts := defaultOptions()
	opts.Credential = ""
	engine := newEngine(opts)
	req := httptest.NewRequest(http.MethodGet, "/api/fal/proxy", nil)
	req.Header.Set(fal.TargetURLHeader, "https://queue.fal.run/fal-ai/veo3/requests/1/status")

	w := serve(engine, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, MsgMissingCredential, w.Body.String())
}

func TestRelayUnwrapsInputAndInjectsCredential(t *testing.T) {
	upstream, captured := newUpstream(t, nil)
	engine := newEngine(defaultOptions())

	req := httptest.NewRequest(http.MethodPost, "/api/fal/proxy", strings.NewReader(`{"input": {"prompt": "x"}, "extra": 1}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer client-token")
	req.Header.Set("X-Custom", "kept")
	req.Header.Set(fal.TargetURLHeader, upstream.URL+"/fal-ai/veo3")
	req.Host = "studio.example.com"

	w := serve(engine, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"request_id":"req-1"}`, w.Body.String())

	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, `{"prompt":"x"}`, string(captured.Body))
	assert.Equal(t, "Key secret-key", captured.Header.Get("Authorization"))
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	assert.Equal(t, "kept", captured.Header.Get("X-Custom"))
	assert.Empty(t, captured.Header.Get(fal.TargetURLHeader))
	assert.NotEqual(t, "studio.example.com", captured.Host)
}

func TestRelayKeepsBodyWithoutInput(t *testing.T) {
	upstream, captured := newUpstream(t, nil)
	engine := newEngine(defaultOptions())

	req := httptest.NewRequest(http.MethodPost, "/api/fal/proxy", strings.NewReader(`{"prompt":"<b>x</b>","num_images":2}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(fal.TargetURLHeader, upstream.URL+"/fal-ai/flux/dev")

	w := serve(engine, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"prompt":"<b>x</b>","num_images":2}`, string(captured.Body))
	assert.Contains(t, string(captured.Body), "<b>")
}

func TestRelayInvalidJSON(t *testing.T) {
	engine := newEngine(defaultOptions())
	req := httptest.NewRequest(http.MethodPost, "/api/fal/proxy", strings.NewReader(`{"input":`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(fal.TargetURLHeader, "https://queue.fal.run/fal-ai/veo3")

	w := serve(engine, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MsgInvalidJSON, w.Body.String())
}

func TestRelayEnvelopeModes(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		envelope string
		body     string
		wantCode int
		wantBody string
	}{
		{"显式信封解包", config.UnwrapModeExplicit, fal.EnvelopeInputV1, `{"input":{"prompt":"x"}}`, http.StatusOK, `{"prompt":"x"}`},
		{"explicit模式不嗅探", config.UnwrapModeExplicit, "", `{"input":{"prompt":"x"}}`, http.StatusOK, `{"input":{"prompt":"x"}}`},
		{"信封缺少input", config.UnwrapModeSniff, fal.EnvelopeInputV1, `{"prompt":"x"}`, http.StatusBadRequest, ""},
		{"未知信封版本", config.UnwrapModeSniff, "input/v9", `{"input":{"prompt":"x"}}`, http.StatusBadRequest, ""},
		{"off模式不解包", config.UnwrapModeOff, fal.EnvelopeInputV1, `{"input":{"prompt":"x"}}`, http.StatusOK, `{"input":{"prompt":"x"}}`},
		{"input不是对象", config.UnwrapModeSniff, "", `{"input":"text"}`, http.StatusOK, `{"input":"text"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream, captured := newUpstream(t, nil)
			opts := defaultOptions()
			opts.UnwrapMode = tt.mode
			engine := newEngine(opts)

			req := httptest.NewRequest(http.MethodPost, "/api/fal/proxy", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(fal.TargetURLHeader, upstream.URL+"/fal-ai/veo3")
			if tt.envelope != "" {
				req.Header.Set(fal.EnvelopeHeader, tt.envelope)
			}

			w := serve(engine, req)
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.JSONEq(t, tt.wantBody, string(captured.Body))
				assert.Empty(t, captured.Header.Get(fal.EnvelopeHeader))
			}
		})
	}
}

func TestRelayTimeout(t *testing.T) {
	upstream, _ := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	opts := defaultOptions()
	opts.Timeout = 50 * time.Millisecond
	engine := newEngine(opts)

	req := httptest.NewRequest(http.MethodGet, "/api/fal/proxy", nil)
	req.Header.Set(fal.TargetURLHeader, upstream.URL+"/fal-ai/veo3/requests/1/status")

	w := serve(engine, req)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, MsgTimeout, w.Body.String())
}

func TestRelayTransportFailure(t *testing.T) {
	upstream, _ := newUpstream(t, nil)
	target := upstream.URL
	upstream.Close()
	engine := newEngine(defaultOptions())

	req := httptest.NewRequest(http.MethodGet, "/api/fal/proxy", nil)
	req.Header.Set(fal.TargetURLHeader, target+"/fal-ai/veo3/requests/1")

	w := serve(engine, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Body.String())
	assert.NotEqual(t, MsgTimeout, w.Body.String())
}

func TestRelayCopiesUpstreamResponse(t *testing.T) {
	upstream, captured := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Fal-Request-Id", "abc")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"bad prompt"}`))
	})
	engine := newEngine(defaultOptions())

	// GET 轮询：带 JSON Content-Type 但没有请求体
	req := httptest.NewRequest(http.MethodGet, "/api/fal/proxy", nil)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(fal.TargetURLHeader, upstream.URL+"/fal-ai/veo3/requests/1")

	w := serve(engine, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, `{"detail":"bad prompt"}`, w.Body.String())
	assert.Equal(t, "abc", w.Header().Get("X-Fal-Request-Id"))
	assert.Equal(t, http.MethodGet, captured.Method)
	assert.Empty(t, captured.Body)
}

func TestRelayForwardsBinaryBody(t *testing.T) {
	upstream, captured := newUpstream(t, nil)
	engine := newEngine(defaultOptions())

	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}
	req := httptest.NewRequest(http.MethodPost, "/api/fal/proxy", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set(fal.TargetURLHeader, upstream.URL+"/storage/upload")

	w := serve(engine, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payload, captured.Body)
	assert.Equal(t, "image/png", captured.Header.Get("Content-Type"))
	assert.Equal(t, "Key secret-key", captured.Header.Get("Authorization"))
}

func TestRelayTargetAllowlist(t *testing.T) {
	opts := defaultOptions()
	opts.AllowedHosts = []string{"fal.run", "fal.ai"}
	forwarder := New(opts)

	assert.True(t, forwarder.hostAllowed("queue.fal.run"))
	assert.True(t, forwarder.hostAllowed("fal.ai"))
	assert.True(t, forwarder.hostAllowed("rest.alpha.fal.ai"))
	assert.False(t, forwarder.hostAllowed("evilfal.run"))
	assert.False(t, forwarder.hostAllowed("example.com"))

	engine := newEngine(opts)
	req := httptest.NewRequest(http.MethodGet, "/api/fal/proxy", nil)
	req.Header.Set(fal.TargetURLHeader, "https://example.com/steal")
	w := serve(engine, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, MsgTargetNotAllowed, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/fal/proxy", nil)
	req.Header.Set(fal.TargetURLHeader, "not a url")
	w = serve(engine, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnwrap(t *testing.T) {
	payload := map[string]any{"input": map[string]any{"prompt": "x"}, "extra": 1}

	got, ok := Unwrap(payload, false, config.UnwrapModeSniff)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"prompt": "x"}, got)

	got, ok = Unwrap([]any{1, 2}, false, config.UnwrapModeSniff)
	assert.True(t, ok)
	assert.Equal(t, []any{1, 2}, got)

	_, ok = Unwrap([]any{1, 2}, true, config.UnwrapModeExplicit)
	assert.False(t, ok)
}
