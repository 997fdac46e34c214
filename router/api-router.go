package router

import (
	"github.com/ezlinkai/fal-studio/controller"
	"github.com/ezlinkai/fal-studio/middleware"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

func SetApiRouter(router *gin.Engine) {
	router.Use(middleware.CORS())
	apiRouter := router.Group("/api")
	apiRouter.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		apiRouter.GET("/status", controller.GetStatus)
		apiRouter.GET("/models", controller.ListModels)
		apiRouter.GET("/models/*model", controller.RetrieveModel)
		apiRouter.GET("/monitor/health", controller.GetHealth)
	}
}
