package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/common/helper"
	"github.com/gin-gonic/gin"
)

const (
	loggerDEBUG = "debug"
	loggerINFO  = "info"
	loggerWarn  = "warn"
	loggerError = "error"
)

// LogEntry JSON 日志结构
type LogEntry struct {
	Ts        string `json:"ts"`
	Level     string `json:"level"`
	RequestId string `json:"request_id,omitempty"`
	Msg       string `json:"msg"`
	Service   string `json:"service"`
	Instance  string `json:"instance"`
}

var setupLogLock sync.Mutex
var logDate string
var generalLogFile *os.File
var errorLogFile *os.File

// SetupLogger 打开当天的日志文件；日期变化时由 logHelper 触发重新打开
func SetupLogger() {
	if LogDir == "" {
		return
	}
	if !setupLogLock.TryLock() {
		return
	}
	defer setupLogLock.Unlock()

	dateStr := time.Now().Format("20060102")
	if dateStr == logDate {
		return
	}

	// INFO/WARN/DEBUG
	generalLogPath := filepath.Join(LogDir, fmt.Sprintf("%s-%s.log", config.ServiceName, dateStr))
	fd, err := os.OpenFile(generalLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatal("failed to open general log file")
	}
	// ERROR only
	errorLogPath := filepath.Join(LogDir, fmt.Sprintf("%s-error-%s.log", config.ServiceName, dateStr))
	errFd, err := os.OpenFile(errorLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatal("failed to open error log file")
	}

	if generalLogFile != nil {
		generalLogFile.Close()
	}
	if errorLogFile != nil {
		errorLogFile.Close()
	}
	generalLogFile = fd
	errorLogFile = errFd
	logDate = dateStr

	gin.DefaultWriter = io.MultiWriter(os.Stdout, generalLogFile)
	gin.DefaultErrorWriter = io.MultiWriter(os.Stderr, errorLogFile)
}

func writeJSONLog(writer io.Writer, level, requestId, msg string) {
	entry := LogEntry{
		Ts:        time.Now().Format(time.RFC3339Nano),
		Level:     level,
		RequestId: requestId,
		Msg:       msg,
		Service:   config.ServiceName,
		Instance:  config.InstanceId,
	}
	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		_, _ = fmt.Fprintf(writer, `{"ts":"%s","level":"%s","msg":"json marshal error","service":"%s","instance":"%s"}`+"\n",
			entry.Ts, level, config.ServiceName, config.InstanceId)
		return
	}
	_, _ = writer.Write(append(jsonBytes, '\n'))
}

func SysLog(s string) {
	writeJSONLog(gin.DefaultWriter, loggerINFO, "", s)
}

func SysError(s string) {
	writeJSONLog(gin.DefaultErrorWriter, loggerError, "", s)
}

func Debug(ctx context.Context, msg string) {
	if config.DebugEnabled {
		logHelper(ctx, loggerDEBUG, msg)
	}
}

func Info(ctx context.Context, msg string) {
	logHelper(ctx, loggerINFO, msg)
}

func Warn(ctx context.Context, msg string) {
	logHelper(ctx, loggerWarn, msg)
}

func Error(ctx context.Context, msg string) {
	logHelper(ctx, loggerError, msg)
}

func Debugf(ctx context.Context, format string, a ...any) {
	Debug(ctx, fmt.Sprintf(format, a...))
}

func Infof(ctx context.Context, format string, a ...any) {
	Info(ctx, fmt.Sprintf(format, a...))
}

func Warnf(ctx context.Context, format string, a ...any) {
	Warn(ctx, fmt.Sprintf(format, a...))
}

func Errorf(ctx context.Context, format string, a ...any) {
	Error(ctx, fmt.Sprintf(format, a...))
}

func logHelper(ctx context.Context, level string, msg string) {
	writer := gin.DefaultWriter
	if level == loggerError {
		writer = gin.DefaultErrorWriter
	}

	id := ""
	if ctx != nil {
		if v := ctx.Value(RequestIdKey); v != nil {
			id = fmt.Sprintf("%v", v)
		}
	}
	if id == "" {
		id = helper.GenRequestID()
	}

	writeJSONLog(writer, level, id, msg)

	if LogDir != "" && time.Now().Format("20060102") != logDate {
		go SetupLogger()
	}
}

func FatalLog(v ...any) {
	msg := fmt.Sprint(v...)
	writeJSONLog(gin.DefaultErrorWriter, "fatal", "", msg)
	os.Exit(1)
}
