package generator

import (
	"errors"
	"fmt"

	"github.com/ezlinkai/fal-studio/relay/catalog"
	"github.com/ezlinkai/fal-studio/relay/fal"
)

type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// 界面文案
const (
	MsgTaskStarted       = "任务开始..."
	MsgPrepareUpload     = "准备参数 (图片将自动上传)..."
	MsgCallModel         = "正在调用模型 %s ..."
	MsgCallModelUpload   = "正在调用模型 (含图片上传) %s ..."
	MsgStatus            = "当前状态: %s"
	MsgVideoSucceeded    = "视频生成成功！"
	MsgImageSucceeded    = "图片生成成功！"
	MsgNoMedia           = "生成成功，但未返回媒体地址。"
	MsgNoMediaLog        = "错误：未返回媒体地址。完整结果: %s"
	MsgFailed            = "处理失败: %s"
	MsgCancelled         = "任务已取消"
	MsgNoModel           = "当前没有可用的模型"
	MsgPromptRequired    = "请输入提示词。"
	MsgSingleImage       = "使用 %s 模型必须上传一张起始图片。"
	MsgImagesRequired    = "使用 %s 模型必须上传至少一张图片。"
	MsgTooManyImages     = "%s 模型最多支持 %d 张图片。"
	MsgNotImage          = "仅支持上传图片文件。"
	MsgImagesUnsupported = "%s 模型不支持上传图片。"
)

var (
	ErrBusy                  = errors.New("a generation is already in progress")
	ErrUnexpectedResultShape = errors.New("unexpected result shape")
	ErrCancelled             = errors.New(MsgCancelled)
	ErrNotStarted            = errors.New("no generation has been started")
)

// ValidationError 在提交前阻止请求，Field 指向出错的表单项
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// GenerationRequest 每次提交都重新构建，只包含当前模型声明过的参数
type GenerationRequest struct {
	ModelID string
	Kind    catalog.Kind
	Prompt  string
	Images  []fal.File
	Params  map[string]any
	Input   map[string]any
}

type GenerationResult struct {
	Kind      catalog.Kind `json:"kind"`
	URLs      []string     `json:"urls"`
	Logs      []string     `json:"logs,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	Strategy  string       `json:"strategy,omitempty"`
}
