package middleware

import (
	"context"

	"github.com/ezlinkai/fal-studio/common/helper"
	"github.com/ezlinkai/fal-studio/common/logger"
	"github.com/gin-gonic/gin"
)

func RequestId() func(c *gin.Context) {
	return func(c *gin.Context) {
		// 客户端传了 X-Request-Id 以客户端为准，没传用系统生成的
		id := c.GetHeader(logger.RequestIdKey)
		if id == "" {
			id = helper.GenRequestID()
		}
		c.Set(logger.RequestIdKey, id)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIdKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Request.Header.Set(logger.RequestIdKey, id)
		c.Header(logger.RequestIdKey, id)
		c.Next()
	}
}
