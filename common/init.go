package common

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ezlinkai/fal-studio/common/logger"
)

var Version = "v0.0.0"
var StartTime = time.Now().Unix()

// InitLogDir 优先顺序：命令行参数 > 环境变量 > 默认值
func InitLogDir(flagValue string) error {
	logDir := flagValue
	if logDir == "" {
		logDir = os.Getenv("LOG_DIR")
	}
	if logDir == "" {
		logDir = "./logs"
	}
	logDir, err := filepath.Abs(logDir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		if err := os.MkdirAll(logDir, 0777); err != nil {
			return err
		}
	}
	logger.LogDir = logDir
	return nil
}
