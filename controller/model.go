package controller

import (
	"errors"
	"net/http"

	"github.com/ezlinkai/fal-studio/relay/catalog"
	"github.com/gin-gonic/gin"
)

// ListModels 返回已启用的模型及其参数定义，前端据此渲染表单
func ListModels(c *gin.Context) {
	models := catalog.Default().Active()
	message := ""
	if len(models) == 0 {
		message = "当前没有可用的模型"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"data":    models,
	})
}

func RetrieveModel(c *gin.Context) {
	id := c.Param("model")
	if len(id) > 0 && id[0] == '/' {
		id = id[1:]
	}
	model, err := catalog.Default().Lookup(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, catalog.ErrModelUnavailable) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    model,
	})
}
