package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ezlinkai/fal-studio/common"
	"github.com/ezlinkai/fal-studio/common/image"
	"github.com/ezlinkai/fal-studio/common/logger"
	"github.com/ezlinkai/fal-studio/relay/catalog"
	"github.com/ezlinkai/fal-studio/relay/fal"
)

var ErrSessionClosed = errors.New("session is closed")

// Submitter 提交任务并轮询到结束，*fal.Client 满足该接口
type Submitter interface {
	Subscribe(ctx context.Context, modelID string, input map[string]any, opts fal.SubscribeOptions) (*fal.Result, error)
}

type Options struct {
	Catalog      *catalog.Catalog
	Submitter    Submitter
	PollInterval time.Duration
	Extractors   []Extractor
	Previews     *PreviewRegistry
}

// Session 对应一个生成表单：同一时间只允许一个任务，轮询在协程池中执行，状态由 mu 保护
type Session struct {
	mu sync.Mutex

	catalog      *catalog.Catalog
	submitter    Submitter
	pollInterval time.Duration
	extractors   []Extractor
	previews     *PreviewRegistry

	model   *catalog.ModelConfig
	prompt  string
	params  map[string]any
	images  []fal.File
	handles []string

	state        State
	busy         bool
	closed       bool
	err          error
	errMsg       string
	logs         []string
	statusSeen   map[string]bool
	providerLogs int
	requestID    string
	result       *GenerationResult
	cancel       context.CancelFunc
	done         chan struct{}
}

type Snapshot struct {
	ModelID   string            `json:"model_id,omitempty"`
	ModelName string            `json:"model_name,omitempty"`
	Kind      catalog.Kind      `json:"kind,omitempty"`
	Prompt    string            `json:"prompt"`
	Params    map[string]any    `json:"params"`
	Previews  []string          `json:"previews"`
	State     State             `json:"state"`
	Busy      bool              `json:"busy"`
	Error     string            `json:"error,omitempty"`
	Logs      []string          `json:"logs"`
	RequestID string            `json:"request_id,omitempty"`
	Result    *GenerationResult `json:"result,omitempty"`
}

// NewSession 默认选中目录中第一个启用的模型；目录为空时处于“无可用模型”状态
func NewSession(opts Options) *Session {
	s := &Session{
		catalog:      opts.Catalog,
		submitter:    opts.Submitter,
		pollInterval: opts.PollInterval,
		extractors:   opts.Extractors,
		previews:     opts.Previews,
		state:        StateIdle,
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}
	if s.pollInterval <= 0 {
		s.pollInterval = fal.DefaultPollInterval
	}
	if s.extractors == nil {
		s.extractors = DefaultExtractors
	}
	if s.previews == nil {
		s.previews = NewPreviewRegistry()
	}
	model, _ := s.catalog.First()
	s.resetForModel(model)
	return s
}

func (s *Session) Models() []catalog.ModelConfig {
	return s.catalog.Active()
}

// SelectModel 切换模型并整体替换依赖状态；id 不可用时进入“无可用模型”状态并返回错误
func (s *Session) SelectModel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.busy {
		return ErrBusy
	}
	model, err := s.catalog.Lookup(id)
	if err != nil {
		s.resetForModel(nil)
		return err
	}
	s.resetForModel(model)
	return nil
}

// resetForModel 调用方需持有 mu；提示词保留，其余状态全部重置
func (s *Session) resetForModel(model *catalog.ModelConfig) {
	s.revokePreviews()
	s.model = model
	s.images = nil
	s.params = map[string]any{}
	if model != nil {
		s.params = model.Defaults()
	}
	s.state = StateIdle
	s.err = nil
	s.errMsg = ""
	s.logs = nil
	s.result = nil
	s.requestID = ""
	s.done = nil
}

func (s *Session) revokePreviews() {
	for _, handle := range s.handles {
		s.previews.Revoke(handle)
	}
	s.handles = nil
}

func (s *Session) SetPrompt(prompt string) {
	s.mu.Lock()
	s.prompt = prompt
	s.mu.Unlock()
}

// SetParam 只接受当前模型声明过的参数
func (s *Session) SetParam(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return catalog.ErrModelUnavailable
	}
	if s.busy {
		return ErrBusy
	}
	p, ok := s.model.Param(name)
	if !ok {
		return &ValidationError{Field: name, Message: fmt.Sprintf("%s 模型不支持参数 %s", s.model.DisplayBrand(), name)}
	}
	coerced, err := p.Coerce(value)
	if err != nil {
		return &ValidationError{Field: name, Message: err.Error()}
	}
	s.params[name] = coerced
	return nil
}

// AttachImages 用新选择的图片替换已有附件，旧的预览句柄会被释放；返回新的预览句柄
func (s *Session) AttachImages(files ...fal.File) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return nil, catalog.ErrModelUnavailable
	}
	if s.busy {
		return nil, ErrBusy
	}
	d, err := GetDescriptor(s.model.Family)
	if err != nil {
		return nil, err
	}
	_, maxImages := d.ImageLimits()
	if maxImages == 0 && len(files) > 0 {
		return nil, &ValidationError{Field: "images", Message: fmt.Sprintf(MsgImagesUnsupported, s.model.DisplayBrand())}
	}
	if len(files) > maxImages {
		return nil, &ValidationError{Field: "images", Message: fmt.Sprintf(MsgTooManyImages, s.model.DisplayBrand(), maxImages)}
	}
	attached := make([]fal.File, 0, len(files))
	for _, f := range files {
		info, err := image.Sniff(f.Data)
		if err != nil {
			return nil, &ValidationError{Field: "images", Message: MsgNotImage}
		}
		if f.ContentType == "" {
			f.ContentType = info.MimeType
		}
		attached = append(attached, f)
	}

	s.revokePreviews()
	s.images = attached
	for i := range s.images {
		s.handles = append(s.handles, s.previews.Create(&s.images[i]))
	}
	return append([]string(nil), s.handles...), nil
}

func (s *Session) ClearImages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokePreviews()
	s.images = nil
}

func (s *Session) BuildRequest() (*GenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildRequest()
}

func (s *Session) buildRequest() (*GenerationRequest, error) {
	if s.model == nil {
		return nil, catalog.ErrModelUnavailable
	}
	return BuildRequest(s.model, s.prompt, s.images, s.params)
}

// Start 校验并异步提交任务；校验失败时不会发出任何网络请求
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.model == nil {
		s.errMsg = MsgNoModel
		s.mu.Unlock()
		return catalog.ErrModelUnavailable
	}

	s.state = StateValidating
	req, err := s.buildRequest()
	if err != nil {
		s.state = StateIdle
		s.err = err
		s.errMsg = err.Error()
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			s.errMsg = validationErr.Message
		}
		s.mu.Unlock()
		return err
	}

	s.result = nil
	s.err = nil
	s.errMsg = ""
	s.logs = nil
	s.statusSeen = make(map[string]bool)
	s.providerLogs = 0
	s.requestID = ""
	s.busy = true
	s.state = StateSubmitting
	s.logs = append(s.logs, MsgTaskStarted)
	if len(req.Images) > 0 {
		s.logs = append(s.logs, MsgPrepareUpload, fmt.Sprintf(MsgCallModelUpload, req.ModelID))
	} else {
		s.logs = append(s.logs, fmt.Sprintf(MsgCallModel, req.ModelID))
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	logger.Infof(ctx, "generation started: model=%s, images=%d", req.ModelID, len(req.Images))
	common.RelayCtxGo(runCtx, func() {
		s.run(runCtx, req, done)
	})
	return nil
}

func (s *Session) run(ctx context.Context, req *GenerationRequest, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err := s.submitter.Subscribe(ctx, req.ModelID, req.Input, fal.SubscribeOptions{
		PollInterval:  s.pollInterval,
		Logs:          true,
		OnEnqueue:     s.onEnqueue,
		OnQueueUpdate: s.onQueueUpdate,
	})
	if err != nil {
		if ctx.Err() != nil {
			s.finishCancelled(ctx)
			return
		}
		s.fail(ctx, err)
		return
	}

	generation, err := Extract(result.Data, s.extractors)
	if err != nil {
		raw, _ := json.Marshal(result.Data)
		s.mu.Lock()
		s.err = err
		s.errMsg = MsgNoMedia
		s.logs = append(s.logs, fmt.Sprintf(MsgNoMediaLog, string(raw)))
		s.finishLocked(StateFailed)
		s.mu.Unlock()
		logger.Warnf(ctx, "fal request %s returned unexpected result: %s", result.RequestID, string(raw))
		return
	}

	s.mu.Lock()
	generation.RequestID = result.RequestID
	if generation.Kind == catalog.KindVideo {
		s.logs = append(s.logs, MsgVideoSucceeded)
	} else {
		s.logs = append(s.logs, MsgImageSucceeded)
	}
	generation.Logs = append([]string(nil), s.logs...)
	s.result = generation
	s.finishLocked(StateSucceeded)
	s.mu.Unlock()
	logger.Infof(ctx, "generation succeeded: model=%s, request=%s, strategy=%s", req.ModelID, result.RequestID, generation.Strategy)
}

func (s *Session) onEnqueue(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestID = requestID
	s.state = StatePolling
}

// onQueueUpdate 只追加新出现的上游日志，同一状态只记录一次
func (s *Session) onQueueUpdate(status *fal.QueueStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(status.Logs) > s.providerLogs {
		for _, entry := range status.Logs[s.providerLogs:] {
			if entry.Message != "" {
				s.logs = append(s.logs, entry.Message)
			}
		}
		s.providerLogs = len(status.Logs)
	}
	if status.Status != "" && !s.statusSeen[status.Status] {
		s.statusSeen[status.Status] = true
		s.logs = append(s.logs, fmt.Sprintf(MsgStatus, status.Status))
	}
}

func (s *Session) fail(ctx context.Context, err error) {
	msg := fmt.Sprintf(MsgFailed, ErrorMessage(err))
	logger.Errorf(ctx, "generation failed: %s", err.Error())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.errMsg = msg
	s.logs = append(s.logs, msg)
	s.finishLocked(StateFailed)
}

func (s *Session) finishCancelled(ctx context.Context) {
	logger.Warnf(ctx, "generation cancelled")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = ErrCancelled
	s.errMsg = MsgCancelled
	s.logs = append(s.logs, MsgCancelled)
	s.finishLocked(StateFailed)
}

func (s *Session) finishLocked(state State) {
	s.state = state
	s.busy = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Wait 阻塞到当前任务结束或 ctx 取消
func (s *Session) Wait(ctx context.Context) (*GenerationResult, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil, ErrNotStarted
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateSucceeded && s.result != nil:
		result := *s.result
		return &result, nil
	case s.state == StateFailed && s.err != nil:
		return nil, s.err
	default:
		// 任务结束后切换了模型或重新校验失败，没有可返回的结果
		return nil, ErrNotStarted
	}
}

// Generate 同步执行一次完整的生成流程
func (s *Session) Generate(ctx context.Context) (*GenerationResult, error) {
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s.Wait(ctx)
}

// Cancel 取消正在进行的任务，没有任务时返回 false
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Prompt:    s.prompt,
		Params:    make(map[string]any, len(s.params)),
		Previews:  append([]string(nil), s.handles...),
		State:     s.state,
		Busy:      s.busy,
		Error:     s.errMsg,
		Logs:      append([]string(nil), s.logs...),
		RequestID: s.requestID,
	}
	if s.model != nil {
		snap.ModelID = s.model.ID
		snap.ModelName = s.model.Name
		snap.Kind = s.model.Kind
	} else {
		snap.Error = MsgNoModel
	}
	for k, v := range s.params {
		snap.Params[k] = v
	}
	if s.result != nil {
		result := *s.result
		snap.Result = &result
	}
	return snap
}

// Close 取消进行中的任务并释放全部预览句柄
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.busy && s.cancel != nil {
		s.cancel()
	}
	s.revokePreviews()
	s.images = nil
}

// ErrorMessage 返回面向用户的错误描述，超时与上游错误可区分
func ErrorMessage(err error) string {
	if errors.Is(err, fal.ErrProxyTimeout) {
		return fal.ErrProxyTimeout.Error()
	}
	var apiErr *fal.ApiError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
