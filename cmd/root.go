package cmd

import (
	"fmt"
	"os"

	"github.com/ezlinkai/fal-studio/common"
	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/common/logger"
	"github.com/ezlinkai/fal-studio/relay/catalog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var logDirFlag string

var rootCmd = &cobra.Command{
	Use:   "fal-studio",
	Short: "fal.ai credential proxy and generation client",
	Long: `Serve a credential-injecting proxy for fal.ai, or drive the generator from the command line.

Examples:
  $ fal-studio serve --port 3000
  $ fal-studio models
  $ fal-studio generate -m fal-ai/veo3 -p "a paper boat drifting at dusk"
  $ fal-studio generate -m fal-ai/kling-video/v1/standard/image-to-video -p "the cat jumps" -i cat.png --param cfg_scale=0.7`,
	Version:       common.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env 不存在时直接使用进程环境变量
		_ = godotenv.Load()
		if err := config.Load(); err != nil {
			return err
		}
		return catalog.Init(config.CatalogFile)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.SysError(err.Error())
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logDirFlag, "log-dir", "", "specify the log directory (default $LOG_DIR or ./logs)")
}
