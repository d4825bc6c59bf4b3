package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/gocrud/container/aop"
	"github.com/gocrud/container/config"
	"github.com/gocrud/container/di"
	"github.com/gocrud/container/hosting"
	"github.com/gocrud/container/logging"
)

// Runtime 是框架的上帝对象，作为状态容器
type Runtime struct {
	// Features 存放构建时特性 (cron 注册器、数据库工厂等)
	Features FeatureCollection

	// Store 组件描述存储
	Store *di.Store

	// Container 组件容器，Build 之后可用
	Container *di.Container

	// Config 配置，可能为 nil
	Config config.Configuration

	Settings Settings

	Logger logging.Logger

	// Lifecycle 生命周期管理
	Lifecycle *LifecycleEvents

	// AutoProxy 自动代理钩子，Build 之前存在拦截来源时创建
	AutoProxy *aop.AutoProxyCreator

	hooks              []any
	hookComponents     []string
	advice             []aop.AdviceSource
	commonInterceptors []string
	targetSources      []aop.TargetSourceCreator
	adapters           []func(*aop.AutoProxyCreator)
	hosted             []string

	services *hosting.HostedServiceManager
	buildMu  sync.Mutex

	// shutdownCh 用于通知应用退出
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	// ErrorHandler 用于记录运行时产生的严重错误
	// 外部可以通过设置此字段来接管错误日志
	ErrorHandler func(err error)
}

// NewRuntime 创建一个新的运行时实例
func NewRuntime() *Runtime {
	rt := &Runtime{
		Store:      di.NewStore(),
		Settings:   DefaultSettings(),
		Lifecycle:  NewLifecycle(),
		shutdownCh: make(chan struct{}),
	}
	rt.ErrorHandler = func(err error) {
		rt.logger().Error("运行时错误", logging.Err(err))
	}
	return rt
}

func (rt *Runtime) logger() logging.Logger {
	if rt.Logger == nil {
		rt.Logger = logging.NewLoggingBuilder().
			SetMinimumLevel(rt.Settings.Level()).
			AddConsole().
			Build().
			CreateLogger("app")
	}
	return rt.Logger
}

// Shutdown 请求应用退出
func (rt *Runtime) Shutdown() {
	rt.shutdownOnce.Do(func() { close(rt.shutdownCh) })
}

// Done 返回一个通道，当应用需要退出时该通道会关闭
func (rt *Runtime) Done() <-chan struct{} {
	return rt.shutdownCh
}

// Register 注册组件描述
func (rt *Runtime) Register(name string, typ reflect.Type, opts ...di.Option) error {
	return rt.Store.Register(name, typ, opts...)
}

// Provide 以 T 的类型注册组件，结构体类型注册为其指针
func Provide[T any](rt *Runtime, name string, opts ...di.Option) error {
	return di.Register[T](rt.Store, name, opts...)
}

// AddHooks 注册扩展钩子实例
func (rt *Runtime) AddHooks(hooks ...any) {
	rt.hooks = append(rt.hooks, hooks...)
}

// RegisterHook 注册一个由容器创建的钩子组件。
// 钩子组件在构建时最先创建，之后创建的组件才会经过它。
func (rt *Runtime) RegisterHook(name string, typ reflect.Type, opts ...di.Option) error {
	if err := rt.Register(name, typ, opts...); err != nil {
		return err
	}
	rt.hookComponents = append(rt.hookComponents, name)
	return nil
}

// AddAdvice 为自动代理添加拦截来源
func (rt *Runtime) AddAdvice(sources ...aop.AdviceSource) {
	rt.advice = append(rt.advice, sources...)
}

// AddProxyAdapter 在自动代理创建后注册类型化适配器
func (rt *Runtime) AddProxyAdapter(register func(*aop.AutoProxyCreator)) {
	rt.adapters = append(rt.adapters, register)
}

// Build 创建容器、注册钩子组件并按设置预先创建单例
func (rt *Runtime) Build(ctx context.Context) error {
	rt.buildMu.Lock()
	defer rt.buildMu.Unlock()
	if rt.Container != nil {
		return fmt.Errorf("core: 容器已构建")
	}

	log := rt.logger()
	hooks := make([]any, 0, len(rt.hooks)+2)
	if rt.Config != nil {
		hooks = append(hooks, config.NewPlaceholderHook(rt.Config))
	}
	hooks = append(hooks, rt.hooks...)

	if len(rt.advice) > 0 || len(rt.commonInterceptors) > 0 || len(rt.targetSources) > 0 {
		rt.AutoProxy = aop.NewAutoProxyCreator(aop.Advices(rt.advice...),
			aop.WithCommonInterceptors(rt.commonInterceptors...),
			aop.WithCommonInterceptorsFirst(rt.Settings.CommonInterceptorsFirst),
			aop.WithTargetSourceCreators(rt.targetSources...),
			aop.WithLogger(log))
		for _, register := range rt.adapters {
			register(rt.AutoProxy)
		}
		hooks = append(hooks, rt.AutoProxy)
	}

	rt.Container = di.New(rt.Store,
		di.WithHooks(hooks...),
		di.WithLogger(log),
		di.WithCircularReferences(rt.Settings.AllowCircularReferences),
		di.WithRawInjectionDespiteWrapping(rt.Settings.AllowRawInjectionDespiteWrapping))
	if rt.Config != nil {
		rt.Container.RegisterResolvable(reflect.TypeFor[config.Configuration](), rt.Config)
	}
	rt.Container.RegisterResolvable(reflect.TypeFor[logging.Logger](), log)

	if len(rt.hookComponents) > 0 {
		instances := make([]any, 0, len(rt.hookComponents))
		for _, name := range rt.hookComponents {
			h, err := rt.Container.GetOrCreate(ctx, name)
			if err != nil {
				return fmt.Errorf("core: 创建钩子组件 %q 失败: %w", name, err)
			}
			instances = append(instances, h)
		}
		rt.Container.AddHooks(instances...)
	}

	if rt.Settings.PreInstantiate {
		if err := rt.Container.PreInstantiateSingletons(ctx); err != nil {
			return err
		}
	}

	log.Info("容器已构建",
		logging.Field{Key: "container", Value: rt.Container.ID()},
		logging.Field{Key: "components", Value: len(rt.Store.Names())},
		logging.Field{Key: "hooks", Value: rt.Container.Pipeline().Len()})
	return nil
}

// Start 启动托管服务并执行启动钩子
func (rt *Runtime) Start(ctx context.Context) error {
	if rt.Container == nil {
		return fmt.Errorf("core: 启动前必须先构建容器")
	}

	rt.services = hosting.NewHostedServiceManager(rt.logger())
	for _, name := range rt.hosted {
		v, err := rt.Container.GetOrCreate(ctx, name)
		if err != nil {
			return fmt.Errorf("core: 获取托管服务 %q 失败: %w", name, err)
		}
		svc, ok := v.(hosting.HostedService)
		if !ok {
			return fmt.Errorf("core: 组件 %q (%T) 没有实现 HostedService", name, v)
		}
		rt.services.Add(name, svc)
	}

	if err := rt.Lifecycle.Start(ctx); err != nil {
		return err
	}

	errCh := rt.services.StartAll(ctx)
	go func() {
		for err := range errCh {
			rt.ErrorHandler(err)
			rt.Shutdown()
		}
	}()
	return nil
}

// Stop 停止托管服务、执行停止钩子并关闭容器
func (rt *Runtime) Stop(ctx context.Context) error {
	var errs []error
	if rt.services != nil {
		if err := rt.services.StopAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.Lifecycle.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if rt.Container != nil {
		if err := rt.Container.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ShutdownTimeout 优雅关闭的超时时间
func (rt *Runtime) ShutdownTimeout() time.Duration {
	return time.Duration(rt.Settings.ShutdownTimeout) * time.Second
}

// Apply 应用多个 Option
func (rt *Runtime) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return err
		}
	}
	return nil
}
