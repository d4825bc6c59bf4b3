package web

import (
	"errors"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	"github.com/gocrud/container/metrics"
)

// HostName Web 主机的组件名
const HostName = "web.host"

// Builder Web 主机配置
type Builder struct {
	addr       string
	metrics    bool
	middleware []gin.HandlerFunc
	routes     []func(gin.IRouter)
}

// BuilderOption 用于配置 Web Builder
type BuilderOption func(*Builder)

// WithAddr 设置监听地址，默认 ":8080"
func WithAddr(addr string) BuilderOption {
	return func(b *Builder) { b.addr = addr }
}

// WithMiddleware 使用全局中间件
func WithMiddleware(middleware ...gin.HandlerFunc) BuilderOption {
	return func(b *Builder) { b.middleware = append(b.middleware, middleware...) }
}

// WithRoutes 直接注册路由
func WithRoutes(fn func(gin.IRouter)) BuilderOption {
	return func(b *Builder) { b.routes = append(b.routes, fn) }
}

// WithMetrics 挂载 GET /metrics，需要先启用 metrics.New
func WithMetrics() BuilderOption {
	return func(b *Builder) { b.metrics = true }
}

// New 启用 Web 能力，主机注册为托管服务 web.host
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		b := &Builder{addr: ":8080"}
		for _, opt := range opts {
			opt(b)
		}

		gin.SetMode(gin.ReleaseMode)
		engine := gin.New()
		engine.Use(gin.Recovery(), requestLogger(rt.Logger))
		engine.Use(b.middleware...)
		for _, fn := range b.routes {
			fn(engine)
		}
		if b.metrics {
			collector := core.GetFeature[*metrics.Collector](rt)
			if collector == nil {
				return errors.New("web: WithMetrics 需要先启用 metrics")
			}
			engine.GET("/metrics", gin.WrapH(collector.Handler()))
		}

		host := NewHost(b.addr, engine, rt.Logger)
		rt.Features.Set(host)
		return core.WithHostedService(HostName, reflect.TypeOf(host),
			di.WithSupplier(func() (any, error) { return host, nil }))(rt)
	}
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithCategory("web")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("请求完成",
			logging.Field{Key: "method", Value: c.Request.Method},
			logging.Field{Key: "path", Value: c.FullPath()},
			logging.Field{Key: "status", Value: c.Writer.Status()},
			logging.Field{Key: "latency", Value: time.Since(start)})
	}
}
