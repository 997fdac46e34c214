package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/ezlinkai/fal-studio/common/logger"
	"github.com/gin-gonic/gin"
)

func RelayPanicRecover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.SysError(fmt.Sprintf("panic detected: %v", err))
				logger.SysError(fmt.Sprintf("stacktrace from panic: %s", string(debug.Stack())))
				abortWithMessage(c, http.StatusInternalServerError, fmt.Sprintf("panic detected, error: %v", err))
			}
		}()
		c.Next()
	}
}
