package router

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/common/logger"
	_ "github.com/ezlinkai/fal-studio/docs"
	"github.com/ezlinkai/fal-studio/relay/proxy"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func SetRouter(router *gin.Engine, forwarder *proxy.Forwarder) {
	SetApiRouter(router)
	SetRelayRouter(router, forwarder)
	SetSwaggerRouter(router)
	SetWebRouter(router, config.WebDir)
}

// SetSwaggerRouter 默认使用内置文档，SWAGGER_JSON_URL 可指向外部文档
func SetSwaggerRouter(router *gin.Engine) {
	options := []func(*ginSwagger.Config){ginSwagger.DefaultModelsExpandDepth(-1)}
	if swaggerURL := os.Getenv("SWAGGER_JSON_URL"); swaggerURL != "" {
		options = append(options, ginSwagger.URL(swaggerURL))
	}
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, options...))
	logger.SysLog("Swagger UI enabled at /swagger/index.html")
}

// SetWebRouter 托管前端构建产物；未配置目录时只提供 API
func SetWebRouter(router *gin.Engine, webDir string) {
	if webDir == "" {
		return
	}
	if info, err := os.Stat(webDir); err != nil || !info.IsDir() {
		logger.SysError(fmt.Sprintf("WEB_DIR %s is not a directory, static files disabled", webDir))
		return
	}
	router.Use(static.Serve("/", static.LocalFile(webDir, true)))
	index := filepath.Join(webDir, "index.html")
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.RequestURI, "/api") {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "not found",
			})
			return
		}
		c.Header("Cache-Control", "no-cache")
		c.File(index)
	})
	logger.SysLog(fmt.Sprintf("serving web assets from %s", webDir))
}
