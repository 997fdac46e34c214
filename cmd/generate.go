package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/ezlinkai/fal-studio/common/cloudflare"
	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/common/helper"
	"github.com/ezlinkai/fal-studio/common/image"
	"github.com/ezlinkai/fal-studio/common/logger"
	"github.com/ezlinkai/fal-studio/common/token"
	"github.com/ezlinkai/fal-studio/relay/catalog"
	"github.com/ezlinkai/fal-studio/relay/fal"
	"github.com/ezlinkai/fal-studio/relay/generator"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	modelFlag        string
	promptFlag       string
	imagesFlag       []string
	paramsFlag       []string
	proxyURLFlag     string
	proxyTokenFlag   string
	pollIntervalFlag time.Duration
	jsonOutput       bool
)

type CLIOutput struct {
	Success   bool     `json:"success"`
	Kind      string   `json:"kind,omitempty"`
	URLs      []string `json:"urls,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
	Error     string   `json:"error,omitempty"`
	Logs      []string `json:"logs,omitempty"`
}

var generateCmd = &cobra.Command{
	Use:     "generate",
	Aliases: []string{"gen"},
	Short:   "Submit a generation through the proxy and wait for the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 日志写到 stderr，stdout 只输出结果
		gin.DefaultWriter = os.Stderr
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ctx = context.WithValue(ctx, logger.RequestIdKey, helper.GenRequestID())

		proxyURL := proxyURLFlag
		if proxyURL == "" {
			proxyURL = config.FalProxyURL
		}
		pollInterval := pollIntervalFlag
		if pollInterval <= 0 {
			pollInterval = config.PollInterval
		}

		client, err := newFalClient(proxyURL)
		if err != nil {
			return err
		}
		session := generator.NewSession(generator.Options{
			Catalog:      catalog.Default(),
			Submitter:    client,
			PollInterval: pollInterval,
		})
		defer session.Close()

		if err := prepareSession(session); err != nil {
			return formatOutput(cmd.OutOrStdout(), nil, err, nil)
		}
		if err := session.Start(ctx); err != nil {
			return formatOutput(cmd.OutOrStdout(), nil, err, nil)
		}
		followLogs(ctx, session, cmd.ErrOrStderr())

		result, err := session.Wait(context.Background())
		return formatOutput(cmd.OutOrStdout(), result, err, session.Snapshot().Logs)
	},
}

func newFalClient(proxyURL string) (*fal.Client, error) {
	client := fal.NewClient(proxyURL)
	client.ProxyToken = proxyTokenFlag
	if client.ProxyToken == "" && config.ProxyAccessSecret != "" {
		// 本机持有密钥时直接签发
		signed, err := token.Sign(config.ProxyAccessSecret, "cli", config.ProxyTokenTTL)
		if err != nil {
			return nil, err
		}
		client.ProxyToken = signed
	}
	if config.UploadBackend == config.UploadBackendR2 {
		client.Uploader = fal.UploaderFunc(func(ctx context.Context, file *fal.File) (string, error) {
			return cloudflare.UploadFile(ctx, file.Name, file.ContentType, file.Data)
		})
	}
	return client, nil
}

func prepareSession(session *generator.Session) error {
	if modelFlag != "" {
		if err := session.SelectModel(modelFlag); err != nil {
			return err
		}
	}
	session.SetPrompt(promptFlag)
	for _, kv := range paramsFlag {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid --param %q, expected key=value", kv)
		}
		if err := session.SetParam(strings.TrimSpace(name), strings.TrimSpace(value)); err != nil {
			return err
		}
	}
	if len(imagesFlag) == 0 {
		return nil
	}
	files := make([]fal.File, 0, len(imagesFlag))
	for _, src := range imagesFlag {
		file, err := loadImage(src)
		if err != nil {
			return err
		}
		files = append(files, *file)
	}
	_, err := session.AttachImages(files...)
	return err
}

// loadImage 支持本地路径与 data:image/...;base64 形式
func loadImage(src string) (*fal.File, error) {
	if image.IsDataURL(src) {
		mimeType, data, err := image.DecodeDataURL(src)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image data url: %w", err)
		}
		return &fal.File{
			Name:        "upload" + image.ExtensionFromMimeType(mimeType),
			ContentType: mimeType,
			Data:        data,
		}, nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", src, err)
	}
	return &fal.File{Name: filepath.Base(src), Data: data}, nil
}

// followLogs 把新增日志实时输出，直到任务结束
func followLogs(ctx context.Context, session *generator.Session, out io.Writer) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	printed := 0
	done := ctx.Done()
	for {
		snap := session.Snapshot()
		for _, line := range snap.Logs[printed:] {
			fmt.Fprintln(out, line)
		}
		printed = len(snap.Logs)
		if !snap.Busy {
			return
		}
		select {
		case <-done:
			// Ctrl-C：会话随 ctx 取消，继续等到状态落定
			done = nil
		case <-ticker.C:
		}
	}
}

func formatOutput(out io.Writer, result *generator.GenerationResult, err error, logs []string) error {
	if jsonOutput {
		output := CLIOutput{Success: err == nil, Logs: logs}
		if result != nil {
			output.Kind = string(result.Kind)
			output.URLs = result.URLs
			output.RequestID = result.RequestID
		}
		if err != nil {
			output.Error = generator.ErrorMessage(err)
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(out, string(jsonData))
		return err
	}
	if err != nil {
		return err
	}
	for _, url := range result.URLs {
		fmt.Fprintln(out, url)
	}
	return nil
}

func init() {
	generateCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Model id (default: first active model)")
	generateCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Text prompt (required)")
	generateCmd.Flags().StringArrayVarP(&imagesFlag, "image", "i", []string{}, "Reference image paths or data URLs")
	generateCmd.Flags().StringArrayVar(&paramsFlag, "param", []string{}, "Model parameter as key=value, repeatable")
	generateCmd.Flags().StringVar(&proxyURLFlag, "proxy-url", "", "Proxy endpoint (default $FAL_PROXY_URL)")
	generateCmd.Flags().StringVar(&proxyTokenFlag, "proxy-token", "", "Proxy access token (signed locally when $PROXY_ACCESS_SECRET is set)")
	generateCmd.Flags().DurationVar(&pollIntervalFlag, "poll-interval", 0, "Status poll interval (default $POLL_INTERVAL)")
	generateCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	_ = generateCmd.MarkFlagRequired("prompt")
	rootCmd.AddCommand(generateCmd)
}
