package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/ezlinkai/fal-studio/common"
	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/common/logger"
	"github.com/ezlinkai/fal-studio/middleware"
	"github.com/ezlinkai/fal-studio/monitor"
	"github.com/ezlinkai/fal-studio/relay/proxy"
	"github.com/ezlinkai/fal-studio/router"
	"github.com/ezlinkai/fal-studio/service"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fal.ai proxy and API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := common.InitLogDir(logDirFlag); err != nil {
			return err
		}
		logger.SetupLogger()
		logger.SysLog(fmt.Sprintf("%s %s started", config.SystemName, common.Version))
		if os.Getenv("GIN_MODE") != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		if config.DebugEnabled {
			logger.SysLog("running in debug mode")
		}
		if config.FalKey == "" {
			logger.SysError("FAL_KEY is not set, proxy requests will fail until it is configured")
		}

		if err := common.InitRedisClient(); err != nil {
			logger.FatalLog("failed to initialize Redis: " + err.Error())
		}
		defer func() {
			if err := common.CloseRedisClient(); err != nil {
				logger.SysError("failed to close Redis: " + err.Error())
			}
		}()

		client, err := service.NewProxyHttpClient(config.RelayProxy)
		if err != nil {
			return fmt.Errorf("invalid RELAY_PROXY: %w", err)
		}
		if config.RelayProxy != "" {
			logger.SysLog("outbound requests use relay proxy " + config.RelayProxy)
		}
		forwarder := proxy.New(proxy.OptionsFromConfig(client))

		go monitorGoroutines()
		if err := monitor.StartCloudWatchReporter(cmd.Context()); err != nil {
			logger.SysError("failed to start CloudWatch reporter: " + err.Error())
		}
		defer monitor.StopCloudWatchReporter()

		server := gin.New()
		server.Use(gin.Recovery())
		server.Use(middleware.RequestId())
		middleware.SetUpLogger(server)
		router.SetRouter(server, forwarder)

		port := config.Port
		if cmd.Flags().Changed("port") {
			port = portFlag
		}
		logger.SysLog(fmt.Sprintf("proxy endpoint ready at :%d/api/fal/proxy (unwrap mode %s, timeout %s)",
			port, config.ProxyUnwrapMode, config.ProxyTimeout))
		return server.Run(":" + strconv.Itoa(port))
	},
}

// monitorGoroutines 定期记录 goroutine 数量与内存占用
func monitorGoroutines() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		count := runtime.NumGoroutine()
		if count > 5000 {
			logger.SysError(fmt.Sprintf("high goroutine count detected: %d", count))
		} else if count > 2000 {
			logger.SysLog(fmt.Sprintf("goroutine count elevated: %d", count))
		} else if config.DebugEnabled {
			logger.SysLog(fmt.Sprintf("goroutine count: %d", count))
		}

		if config.DebugEnabled {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			logger.SysLog(fmt.Sprintf("memory: Alloc=%dMB, TotalAlloc=%dMB, Sys=%dMB, NumGC=%d",
				m.Alloc/1024/1024, m.TotalAlloc/1024/1024, m.Sys/1024/1024, m.NumGC))
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 3000, "the listening port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}
