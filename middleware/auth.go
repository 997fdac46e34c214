package middleware

import (
	"net/http"

	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/common/token"
	"github.com/ezlinkai/fal-studio/relay/fal"
	"github.com/gin-gonic/gin"
)

const ctxKeyProxySubject = "proxy_subject"

// ProxyAuth 未配置 PROXY_ACCESS_SECRET 时直接放行
func ProxyAuth() func(c *gin.Context) {
	return func(c *gin.Context) {
		if config.ProxyAccessSecret == "" {
			c.Next()
			return
		}
		subject, err := token.Verify(config.ProxyAccessSecret, c.GetHeader(fal.ProxyTokenHeader))
		if err != nil {
			abortWithMessage(c, http.StatusUnauthorized, "无权访问代理，访问令牌无效或已过期")
			return
		}
		c.Set(ctxKeyProxySubject, subject)
		c.Next()
	}
}
