package hosting

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gocrud/container/logging"
)

// HostedService 托管服务接口
// 框架会自动在 goroutine 中调用 Start，用户无需自己启动 goroutine
type HostedService interface {
	// Start 启动服务。该方法可以阻塞，直到 context 被取消或发生错误。
	Start(ctx context.Context) error

	// Stop 执行优雅关闭逻辑，必须支持通过 ctx 进行超时控制。
	Stop(ctx context.Context) error
}

type entry struct {
	name    string
	service HostedService
}

// HostedServiceManager 托管服务管理器
type HostedServiceManager struct {
	services []entry
	logger   logging.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewHostedServiceManager 创建托管服务管理器
func NewHostedServiceManager(logger logging.Logger) *HostedServiceManager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &HostedServiceManager{
		logger: logger.WithCategory("hosting"),
	}
}

// Add 添加托管服务
func (m *HostedServiceManager) Add(name string, service HostedService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, entry{name: name, service: service})
}

// Len 托管服务数量
func (m *HostedServiceManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.services)
}

// StartAll 在独立的 goroutine 中启动所有托管服务。
// 返回的通道在所有 Start 返回后关闭，只传递非取消类的错误。
func (m *HostedServiceManager) StartAll(ctx context.Context) <-chan error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errCh := make(chan error, len(m.services))
	m.logger.Info(fmt.Sprintf("Starting %d hosted services", len(m.services)))

	for _, e := range m.services {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()

			m.logger.Debug("Starting hosted service", logging.Component(e.name))
			err := e.service.Start(ctx)
			switch {
			case err == nil:
				m.logger.Debug("Hosted service completed", logging.Component(e.name))
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				m.logger.Debug("Hosted service stopped (context done)", logging.Component(e.name))
			default:
				m.logger.Error("Hosted service error",
					logging.Component(e.name),
					logging.Err(err))
				errCh <- fmt.Errorf("hosting: %s: %w", e.name, err)
			}
		}()
	}

	go func() {
		m.wg.Wait()
		close(errCh)
	}()
	return errCh
}

// StopAll 倒序并发停止所有托管服务
func (m *HostedServiceManager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.logger.Info(fmt.Sprintf("Stopping %d hosted services", len(m.services)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, e := range slices.Backward(m.services) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.service.Stop(ctx); err != nil {
				m.logger.Error("Failed to stop hosted service",
					logging.Component(e.name),
					logging.Err(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("hosting: %s: %w", e.name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	m.logger.Info("All hosted services stopped")
	return errors.Join(errs...)
}

// Wait 等待所有服务的 Start 返回
func (m *HostedServiceManager) Wait() {
	m.wg.Wait()
}

// WorkerFunc 阻塞的后台任务，通过 ctx.Done() 判断退出
type WorkerFunc func(ctx context.Context) error

// Worker 将 WorkerFunc 适配为 HostedService，Stop 取消其 context
type Worker struct {
	fn WorkerFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(fn WorkerFunc) *Worker {
	return &Worker{fn: fn}
}

func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.mu.Lock()
	w.cancel, w.done = cancel, done
	w.mu.Unlock()

	defer close(done)
	return w.fn(ctx)
}

func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
