package di

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/gocrud/container/logging"
	"github.com/google/uuid"
)

// Container 组件生命周期编排器，同时是默认的依赖解析器。
type Container struct {
	id       string
	store    DescriptorStore
	pipeline atomic.Pointer[Pipeline]
	logger   logging.Logger
	registry *registry
	injector *Injector

	allowCircular     bool
	allowRawInjection bool

	resMu       sync.RWMutex
	resolvables map[reflect.Type]any

	closed atomic.Bool
}

// ContainerOption 配置容器。
type ContainerOption func(*Container)

// WithPipeline 使用已构建的钩子管道。
func WithPipeline(p *Pipeline) ContainerOption {
	return func(c *Container) {
		if p != nil {
			c.pipeline.Store(p)
		}
	}
}

// WithHooks 追加扩展钩子。
func WithHooks(hooks ...any) ContainerOption {
	return func(c *Container) {
		c.pipeline.Store(c.Pipeline().With(hooks...))
	}
}

// WithLogger 设置日志记录器，默认丢弃所有输出。
func WithLogger(l logging.Logger) ContainerOption {
	return func(c *Container) {
		c.logger = l
	}
}

// WithCircularReferences 是否允许单例之间的循环引用，默认允许。
func WithCircularReferences(allow bool) ContainerOption {
	return func(c *Container) {
		c.allowCircular = allow
	}
}

// WithRawInjectionDespiteWrapping 是否允许依赖方持有未包装的原始实例，默认不允许。
func WithRawInjectionDespiteWrapping(allow bool) ContainerOption {
	return func(c *Container) {
		c.allowRawInjection = allow
	}
}

// New 创建容器。store 为 nil 时使用空的内存存储。
func New(store DescriptorStore, opts ...ContainerOption) *Container {
	if store == nil {
		store = NewStore()
	}
	c := &Container{
		id:            uuid.NewString(),
		store:         store,
		logger:        logging.Discard(),
		registry:      newRegistry(),
		allowCircular: true,
		resolvables:   make(map[reflect.Type]any),
	}
	c.pipeline.Store(NewPipeline())
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithCategory("di").WithFields(logging.Field{Key: "container", Value: c.id})

	c.injector = newInjector(c)
	c.pipeline.Store(c.Pipeline().With(c.injector))
	c.awareHooks(c.Pipeline().Hooks())

	c.RegisterResolvable(reflect.TypeFor[*Container](), c)
	c.RegisterResolvable(reflect.TypeFor[DependencyResolver](), c)
	c.RegisterResolvable(reflect.TypeFor[DescriptorStore](), store)
	return c
}

// ID 容器实例标识。
func (c *Container) ID() string { return c.id }

// Store 描述存储。
func (c *Container) Store() DescriptorStore { return c.store }

// Pipeline 包含内置注入钩子的管道。
func (c *Container) Pipeline() *Pipeline { return c.pipeline.Load() }

// AddHooks 向管道追加钩子，只影响之后开始的创建。
// 钩子组件在追加之前创建，不会经过自身处理。
func (c *Container) AddHooks(hooks ...any) {
	for {
		old := c.pipeline.Load()
		if c.pipeline.CompareAndSwap(old, old.With(hooks...)) {
			break
		}
	}
	c.awareHooks(hooks)
	c.logger.Debug("追加扩展钩子", logging.Field{Key: "count", Value: len(hooks)})
}

func (c *Container) awareHooks(hooks []any) {
	for _, h := range hooks {
		if a, ok := h.(ContainerAware); ok {
			a.SetContainer(c)
		}
	}
}

// Logger 容器的日志记录器。
func (c *Container) Logger() logging.Logger { return c.logger }

// GetOrCreate 获取组件，单例只创建一次。
func (c *Container) GetOrCreate(ctx context.Context, name string) (any, error) {
	return c.doGet(ctx, name, nil)
}

// GetWithArgs 使用显式构造参数创建组件。单例已存在时参数被忽略。
func (c *Container) GetWithArgs(ctx context.Context, name string, args ...any) (any, error) {
	return c.doGet(ctx, name, args)
}

// CreateIndependent 按描述创建一个不注册到容器的新实例。
func (c *Container) CreateIndependent(ctx context.Context, d *Descriptor, args ...any) (any, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	cp := d.clone()
	cp.Scope = ScopeTransient
	if cp.Name == "" {
		if cp.Type == nil {
			return nil, configErrorf("", "独立创建需要名称或类型")
		}
		cp.Name = cp.Type.String()
	}

	current := chainFrom(ctx)
	if current.contains(cp.Name) {
		return nil, &CircularReferenceError{Chain: append(current.names(), cp.Name)}
	}
	return c.createComponent(withCreation(ctx, cp.Name), cp, args)
}

// RegisterSingleton 注册一个已创建的单例，不执行注入和初始化。
func (c *Container) RegisterSingleton(name string, instance any) error {
	if instance == nil {
		return configErrorf(name, "单例不能为 nil")
	}
	if !c.registry.addFinished(name, instance) {
		return configErrorf(name, "单例已存在")
	}
	return nil
}

// ContainsComponent 是否存在同名的描述或单例。
func (c *Container) ContainsComponent(name string) bool {
	if _, ok := c.registry.finishedInstance(name); ok {
		return true
	}
	return c.store.HasDescriptor(name)
}

// TypeOf 返回组件已创建实例的类型，否则返回预测类型；未知时为 nil。
func (c *Container) TypeOf(name string) reflect.Type {
	if v, ok := c.registry.finishedInstance(name); ok {
		return reflect.TypeOf(v)
	}
	d, err := c.store.MergedDescriptor(name)
	if err != nil || d.Abstract {
		return nil
	}
	typ := c.declaredType(d)
	if predicted := c.Pipeline().PredictType(context.Background(), typ, name); predicted != nil {
		return predicted
	}
	return typ
}

// PreInstantiateSingletons 按注册顺序创建所有非懒加载单例，然后通知 SingletonsReady。
func (c *Container) PreInstantiateSingletons(ctx context.Context) error {
	names := c.store.Names()
	for _, name := range names {
		d, err := c.store.MergedDescriptor(name)
		if err != nil {
			return err
		}
		if d.Abstract || d.Lazy || !d.IsSingleton() {
			continue
		}
		if _, err := c.GetOrCreate(ctx, name); err != nil {
			return err
		}
	}

	for _, name := range names {
		v, ok := c.registry.finishedInstance(name)
		if !ok {
			continue
		}
		if r, ok := v.(SingletonsReady); ok {
			if err := r.SingletonsReady(ctx); err != nil {
				return fmt.Errorf("di: 组件 %q SingletonsReady 失败: %w", name, err)
			}
		}
	}
	c.logger.Info("单例预实例化完成", logging.Field{Key: "count", Value: len(c.registry.finishedNames())})
	return nil
}

// ResetDescriptor 清除名称相关的缓存并销毁已有单例，之后按新描述重新创建。
func (c *Container) ResetDescriptor(ctx context.Context, name string) error {
	if r, ok := c.store.(Resettable); ok {
		r.ResetDescriptor(name)
	}
	for _, h := range c.Pipeline().Hooks() {
		if r, ok := h.(Resettable); ok {
			r.ResetDescriptor(name)
		}
	}

	var errs []error
	c.destroySingleton(ctx, name, &errs)
	return errors.Join(errs...)
}

// Dependents 返回依赖该组件的组件名。
func (c *Container) Dependents(name string) []string {
	return c.registry.dependentsOf(name)
}

// Dependencies 返回该组件依赖的组件名。
func (c *Container) Dependencies(name string) []string {
	return c.registry.dependenciesOf(name)
}
