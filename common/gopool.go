package common

import (
	"context"
	"fmt"
	"math"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/ezlinkai/fal-studio/common/logger"
)

var relayGoPool gopool.Pool

func init() {
	relayGoPool = gopool.NewPool("gopool.RelayPool", math.MaxInt32, gopool.NewConfig())
	relayGoPool.SetPanicHandler(func(ctx context.Context, i interface{}) {
		logger.Error(ctx, fmt.Sprintf("panic in gopool.RelayPool: %v", i))
	})
}

// RelayCtxGo 在共享协程池中执行 f，panic 会被记录而不会打断进程
func RelayCtxGo(ctx context.Context, f func()) {
	relayGoPool.CtxGo(ctx, f)
}
