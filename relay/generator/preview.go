package generator

import (
	"sync"

	"github.com/ezlinkai/fal-studio/relay/fal"
	"github.com/google/uuid"
)

const previewScheme = "blob:"

// PreviewRegistry 管理本地预览句柄；句柄在被替换、切换模型或会话关闭时必须释放
type PreviewRegistry struct {
	mu      sync.Mutex
	handles map[string]*fal.File
}

func NewPreviewRegistry() *PreviewRegistry {
	return &PreviewRegistry{handles: make(map[string]*fal.File)}
}

func (r *PreviewRegistry) Create(file *fal.File) string {
	handle := previewScheme + uuid.NewString()
	r.mu.Lock()
	r.handles[handle] = file
	r.mu.Unlock()
	return handle
}

func (r *PreviewRegistry) Get(handle string) (*fal.File, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.handles[handle]
	return file, ok
}

func (r *PreviewRegistry) Revoke(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[handle]; !ok {
		return false
	}
	delete(r.handles, handle)
	return true
}

// RevokeAll 返回释放的句柄数量
func (r *PreviewRegistry) RevokeAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.handles)
	r.handles = make(map[string]*fal.File)
	return n
}

func (r *PreviewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
