package aop

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
)

// AdviceSource 返回组件的专属拦截器；eligible 为 false 表示不包装，
// eligible 为 true 时即使拦截器为空也会包装。
type AdviceSource func(typ reflect.Type, name string) (interceptors []Interceptor, eligible bool)

// Advices 合并多个 AdviceSource，任一来源认为可包装即包装
func Advices(sources ...AdviceSource) AdviceSource {
	return func(typ reflect.Type, name string) ([]Interceptor, bool) {
		var all []Interceptor
		eligible := false
		for _, src := range sources {
			if src == nil {
				continue
			}
			ics, ok := src(typ, name)
			if ok {
				eligible = true
				all = append(all, ics...)
			}
		}
		return all, eligible
	}
}

// Infrastructure 标记拦截基础设施，实现它的组件永远不会被包装
type Infrastructure interface {
	AopInfrastructure()
}

var (
	interceptorType    = reflect.TypeFor[Interceptor]()
	infrastructureType = reflect.TypeFor[Infrastructure]()
	targetSourceType   = reflect.TypeFor[TargetSource]()
)

// decision 每个组件只做一次的包装决定
type decision struct {
	wrap         bool
	interceptors []Interceptor
}

type adapter struct {
	iface reflect.Type
	build func(*Proxy) any
}

// Option 配置 AutoProxyCreator
type Option func(*AutoProxyCreator)

// WithCommonInterceptors 按组件名解析的公共拦截器
func WithCommonInterceptors(names ...string) Option {
	return func(a *AutoProxyCreator) {
		a.commonNames = append(a.commonNames, names...)
	}
}

// WithCommonInterceptorsFirst 公共拦截器是否排在专属拦截器之前，默认 true
func WithCommonInterceptorsFirst(first bool) Option {
	return func(a *AutoProxyCreator) {
		a.commonFirst = first
	}
}

// WithTargetSourceCreators 自定义目标源，命中时在实例化前直接返回代理
func WithTargetSourceCreators(creators ...TargetSourceCreator) Option {
	return func(a *AutoProxyCreator) {
		a.creators = append(a.creators, creators...)
	}
}

// WithLogger 设置日志记录器
func WithLogger(l logging.Logger) Option {
	return func(a *AutoProxyCreator) {
		a.logger = l
	}
}

// WithOrder 设置钩子顺序，默认 di.LowestPrecedence
func WithOrder(order int) Option {
	return func(a *AutoProxyCreator) {
		a.order = order
	}
}

// AutoProxyCreator 在组件创建流程中自动包装符合条件的组件
type AutoProxyCreator struct {
	advice      AdviceSource
	commonNames []string
	commonFirst bool
	creators    []TargetSourceCreator
	order       int
	logger      logging.Logger

	container *di.Container

	decisions     di.Memo[string, *decision]
	earlyRefs     sync.Map // name -> 原始实例
	targetSourced sync.Map // name -> struct{}
	proxyTypes    sync.Map // name -> reflect.Type

	mu       sync.RWMutex
	adapters []adapter
}

// NewAutoProxyCreator 创建自动代理钩子
func NewAutoProxyCreator(advice AdviceSource, opts ...Option) *AutoProxyCreator {
	a := &AutoProxyCreator{
		advice:      advice,
		commonFirst: true,
		order:       di.LowestPrecedence,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithCategory("aop")
	return a
}

// RegisterAdapter 为实现接口 T 的组件注册类型化的代理适配器。
// 没有匹配的适配器时暴露 *Proxy。
func RegisterAdapter[T any](a *AutoProxyCreator, build func(*Proxy) T) {
	iface := reflect.TypeFor[T]()
	if iface.Kind() != reflect.Interface {
		panic(fmt.Sprintf("aop: 适配器类型 %v 必须是接口", iface))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.adapters = append(a.adapters, adapter{
		iface: iface,
		build: func(p *Proxy) any { return build(p) },
	})
}

func (a *AutoProxyCreator) SetContainer(c *di.Container) {
	a.container = c
	for _, creator := range a.creators {
		if aware, ok := creator.(di.ContainerAware); ok {
			aware.SetContainer(c)
		}
	}
}

func (a *AutoProxyCreator) Order() int { return a.order }

func (a *AutoProxyCreator) AopInfrastructure() {}

// BeforeInstantiation 自定义目标源命中时直接返回代理
func (a *AutoProxyCreator) BeforeInstantiation(ctx context.Context, typ reflect.Type, name string) (any, error) {
	if len(a.creators) == 0 || a.skip(typ, name) {
		return nil, nil
	}
	for _, creator := range a.creators {
		ts, err := creator.TargetSource(ctx, typ, name)
		if err != nil {
			return nil, err
		}
		if ts == nil {
			continue
		}
		a.targetSourced.Store(name, struct{}{})

		d, err := a.decide(ctx, ts.TargetType(), name)
		if err != nil {
			return nil, err
		}
		return a.expose(name, ts, d.interceptors), nil
	}
	return nil, nil
}

// EarlyReference 循环依赖中提前做出包装决定，依赖方拿到的是包装后的对象
func (a *AutoProxyCreator) EarlyReference(ctx context.Context, instance any, name string) (any, error) {
	a.earlyRefs.Store(name, instance)
	return a.wrapIfNecessary(ctx, instance, name)
}

// AfterInit 包装组件；已经作为提前引用包装过的原始实例保持不变
func (a *AutoProxyCreator) AfterInit(ctx context.Context, instance any, name string) (any, error) {
	if raw, ok := a.earlyRefs.LoadAndDelete(name); ok && di.SameInstance(raw, instance) {
		return instance, nil
	}
	return a.wrapIfNecessary(ctx, instance, name)
}

// PredictType 返回已决定包装的组件的暴露类型
func (a *AutoProxyCreator) PredictType(_ context.Context, _ reflect.Type, name string) reflect.Type {
	if t, ok := a.proxyTypes.Load(name); ok {
		return t.(reflect.Type)
	}
	return nil
}

// ResetDescriptor 清除该组件的包装决定
func (a *AutoProxyCreator) ResetDescriptor(name string) {
	a.decisions.Delete(name)
	a.proxyTypes.Delete(name)
	a.targetSourced.Delete(name)
}

func (a *AutoProxyCreator) wrapIfNecessary(ctx context.Context, instance any, name string) (any, error) {
	if _, ok := a.targetSourced.Load(name); ok {
		return instance, nil
	}
	typ := reflect.TypeOf(instance)
	d, err := a.decide(ctx, typ, name)
	if err != nil {
		return nil, err
	}
	if !d.wrap {
		return instance, nil
	}
	return a.expose(name, NewSingletonTarget(instance), d.interceptors), nil
}

func (a *AutoProxyCreator) expose(name string, ts TargetSource, interceptors []Interceptor) any {
	proxy := NewProxy(name, ts, interceptors...)
	exposed := a.adapt(proxy, ts.TargetType())
	a.proxyTypes.Store(name, reflect.TypeOf(exposed))
	a.logger.Debug("创建代理",
		logging.Component(name),
		logging.Field{Key: "target", Value: ts.TargetType().String()},
		logging.Field{Key: "exposed", Value: reflect.TypeOf(exposed).String()},
		logging.Field{Key: "interceptors", Value: len(interceptors)})
	return exposed
}

func (a *AutoProxyCreator) adapt(p *Proxy, typ reflect.Type) any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, ad := range a.adapters {
		if typ.Implements(ad.iface) {
			return ad.build(p)
		}
	}
	return p
}

// decide 对每个组件只判断一次
func (a *AutoProxyCreator) decide(ctx context.Context, typ reflect.Type, name string) (*decision, error) {
	compute := func() (*decision, error) {
		if a.skip(typ, name) || a.advice == nil {
			return &decision{}, nil
		}
		specific, eligible := a.advice(typ, name)
		if !eligible {
			return &decision{}, nil
		}
		all, err := a.merge(ctx, specific)
		if err != nil {
			return nil, err
		}
		return &decision{wrap: true, interceptors: all}, nil
	}
	if name == "" {
		return compute()
	}
	return a.decisions.Get(name, compute)
}

// skip 基础设施类型与原始实例不包装
func (a *AutoProxyCreator) skip(typ reflect.Type, name string) bool {
	if strings.HasSuffix(name, OriginalSuffix) {
		return true
	}
	if typ == nil {
		return false
	}
	return typ.Implements(interceptorType) ||
		typ.Implements(infrastructureType) ||
		typ.Implements(targetSourceType)
}

func (a *AutoProxyCreator) merge(ctx context.Context, specific []Interceptor) ([]Interceptor, error) {
	common := make([]Interceptor, 0, len(a.commonNames))
	for _, n := range a.commonNames {
		if a.container == nil {
			return nil, fmt.Errorf("aop: 解析公共拦截器 %q 需要容器", n)
		}
		v, err := a.container.GetOrCreate(ctx, n)
		if err != nil {
			return nil, err
		}
		ic, ok := v.(Interceptor)
		if !ok {
			return nil, fmt.Errorf("aop: 组件 %q (%T) 不是 Interceptor", n, v)
		}
		common = append(common, ic)
	}

	if a.commonFirst {
		return slices.Concat(common, specific), nil
	}
	return slices.Concat(specific, common), nil
}
