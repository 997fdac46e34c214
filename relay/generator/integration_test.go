package generator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/relay/catalog"
	"github.com/ezlinkai/fal-studio/relay/fal"
	"github.com/ezlinkai/fal-studio/relay/proxy"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstream 模拟 fal 队列服务
type upstream struct {
	mu        sync.Mutex
	auth      []string
	submitted map[string]any
	polls     int32
	server    *httptest.Server
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.auth = append(u.auth, r.Header.Get("Authorization"))
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/"+catalog.ModelKling:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			u.mu.Lock()
			u.submitted = body
			u.mu.Unlock()
			_, _ = io.WriteString(w, `{"request_id":"r1"}`)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/requests/r1/status"):
			if atomic.AddInt32(&u.polls, 1) < 2 {
				_, _ = io.WriteString(w, `{"status":"IN_PROGRESS","logs":[{"message":"rendering"}]}`)
				return
			}
			_, _ = io.WriteString(w, `{"status":"COMPLETED","logs":[{"message":"rendering"}]}`)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/requests/r1"):
			_, _ = io.WriteString(w, `{"video":{"url":"https://v3.fal.media/files/out.mp4"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"not found"}`)
		}
	}))
	t.Cleanup(u.server.Close)
	return u
}

func newProxyServer(t *testing.T, hits *int32) *httptest.Server {
	gin.SetMode(gin.TestMode)
	forwarder := proxy.New(proxy.Options{
		Credential: "test-key",
		Timeout:    5 * time.Second,
		UnwrapMode: config.UnwrapModeExplicit,
	})
	engine := gin.New()
	count := func(c *gin.Context) {
		atomic.AddInt32(hits, 1)
		c.Next()
	}
	engine.GET("/api/fal/proxy", count, forwarder.Relay)
	engine.POST("/api/fal/proxy", count, forwarder.Relay)
	engine.PUT("/api/fal/proxy", count, forwarder.Relay)
	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)
	return server
}

func TestGenerateThroughProxy(t *testing.T) {
	up := newUpstream(t)
	var hits int32
	proxyServer := newProxyServer(t, &hits)

	client := fal.NewClient(proxyServer.URL + "/api/fal/proxy")
	client.QueueURL = up.server.URL
	client.Uploader = fal.UploaderFunc(func(ctx context.Context, file *fal.File) (string, error) {
		return "https://v3.fal.media/files/" + file.Name, nil
	})

	s := newTestSession(t, client, nil)
	require.NoError(t, s.SelectModel(catalog.ModelKling))
	s.SetPrompt("the cat jumps")

	// 缺少图片时请求不会到达代理
	_, err := s.Generate(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))

	_, err = s.AttachImages(pngFile(t, "cat.png"))
	require.NoError(t, err)
	require.NoError(t, s.SetParam("cfg_scale", "0.7"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := s.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, catalog.KindVideo, result.Kind)
	assert.Equal(t, []string{"https://v3.fal.media/files/out.mp4"}, result.URLs)
	assert.Equal(t, "r1", result.RequestID)

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, map[string]any{
		"prompt":          "the cat jumps",
		"image_url":       "https://v3.fal.media/files/cat.png",
		"duration":        "5",
		"aspect_ratio":    "16:9",
		"negative_prompt": "blur, distort, and low quality",
		"cfg_scale":       0.7,
	}, up.submitted)
	for _, auth := range up.auth {
		assert.Equal(t, "Key test-key", auth)
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&hits), int32(4))
	assert.Contains(t, result.Logs, "rendering")
	assert.Contains(t, result.Logs, "当前状态: COMPLETED")
}
