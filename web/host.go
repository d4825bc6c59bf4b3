package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"slices"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
)

// Controller 注册路由的组件。
// 容器中类型实现了该接口的组件会在主机启动时挂载路由。
type Controller interface {
	MountRoutes(router gin.IRouter)
}

var controllerType = reflect.TypeFor[Controller]()

// Host Web 主机（基于 Gin），作为托管服务运行
type Host struct {
	addr   string
	engine *gin.Engine
	server *http.Server
	logger logging.Logger

	container *di.Container
	mu        sync.Mutex
	bound     string
	ready     chan struct{}
}

// NewHost 创建 Web 主机
func NewHost(addr string, engine *gin.Engine, logger logging.Logger) *Host {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Host{
		addr:   addr,
		engine: engine,
		logger: logger.WithCategory("web"),
		server: &http.Server{Handler: engine},
		ready:  make(chan struct{}),
	}
}

func (h *Host) SetContainer(c *di.Container) { h.container = c }

// Engine 获取 Gin 引擎（用于高级定制）
func (h *Host) Engine() *gin.Engine { return h.engine }

// Address 实际监听地址，仅在 Ready 之后有效
func (h *Host) Address() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound
}

// Ready 开始监听后关闭
func (h *Host) Ready() <-chan struct{} { return h.ready }

// Start 挂载路由并监听，阻塞直到 Stop
func (h *Host) Start(ctx context.Context) error {
	if h.container == nil {
		return errors.New("web: 主机没有关联容器")
	}
	if err := h.mapControllers(ctx); err != nil {
		return fmt.Errorf("web: 挂载控制器失败: %w", err)
	}

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("web: 监听 %s 失败: %w", h.addr, err)
	}
	h.mu.Lock()
	h.bound = ln.Addr().String()
	h.mu.Unlock()
	close(h.ready)
	h.logger.Info("Web 主机已启动", logging.Field{Key: "address", Value: ln.Addr().String()})

	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅关闭
func (h *Host) Stop(ctx context.Context) error {
	if err := h.server.Shutdown(ctx); err != nil {
		h.logger.Error("Web 主机关闭失败", logging.Err(err))
		return err
	}
	h.logger.Info("Web 主机已停止")
	return nil
}

// mapControllers 按组件名顺序解析控制器并注册路由
func (h *Host) mapControllers(ctx context.Context) error {
	names := h.container.Store().Names()
	slices.Sort(names)
	for _, name := range names {
		typ := h.container.TypeOf(name)
		if typ == nil || !typ.Implements(controllerType) {
			continue
		}
		v, err := h.container.GetOrCreate(ctx, name)
		if err != nil {
			return fmt.Errorf("解析控制器 %q 失败: %w", name, err)
		}
		ctrl, ok := v.(Controller)
		if !ok {
			return fmt.Errorf("组件 %q (%T) 没有实现 web.Controller", name, v)
		}
		ctrl.MountRoutes(h.engine)
		h.logger.Debug("挂载控制器路由", logging.Field{Key: "controller", Value: name})
	}
	return nil
}
