package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gocrud/container/core"
)

// Run 启动应用程序并阻塞直到收到退出信号
func Run(opts ...core.Option) error {
	rt, err := NewRuntime(opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 构建容器 (创建钩子组件、预先创建单例)
	if err := rt.Build(ctx); err != nil {
		return err
	}

	// 2. 启动托管服务
	if err := rt.Start(ctx); err != nil {
		_ = rt.Stop(context.Background())
		return err
	}

	// 3. 阻塞并监听退出信号
	// 支持 OS 信号 (Ctrl+C, kill) 和 Runtime 内部触发的退出 (rt.Shutdown)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-rt.Done():
	}

	// 4. 优雅关闭
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), rt.ShutdownTimeout())
	defer shutdownCancel()

	return rt.Stop(shutdownCtx)
}
