package aop

import (
	"context"
	"fmt"
	"reflect"
	"slices"
)

// Proxy 拦截对目标对象的方法调用
type Proxy struct {
	name         string
	source       TargetSource
	interceptors []Interceptor
}

// NewProxy 创建代理，拦截器按给定顺序执行
func NewProxy(name string, source TargetSource, interceptors ...Interceptor) *Proxy {
	return &Proxy{
		name:         name,
		source:       source,
		interceptors: slices.Clone(interceptors),
	}
}

// Call 经过拦截器链调用目标方法。
// 参数中的第一个 context.Context 同时用于获取目标对象。
func (p *Proxy) Call(method string, args ...any) ([]any, error) {
	ctx := context.Background()
	for _, a := range args {
		if c, ok := a.(context.Context); ok && c != nil {
			ctx = c
			break
		}
	}
	return p.CallContext(ctx, method, args...)
}

// CallContext 与 Call 相同，但由 ctx 获取目标对象。
// 在组件初始化期间调用没有 context 参数的懒加载代理方法时使用。
func (p *Proxy) CallContext(ctx context.Context, method string, args ...any) ([]any, error) {
	m, ok := p.source.TargetType().MethodByName(method)
	if !ok {
		return nil, fmt.Errorf("aop: %v 没有方法 %s", p.source.TargetType(), method)
	}
	target, err := p.source.Target(ctx)
	if err != nil {
		return nil, fmt.Errorf("aop: 获取 %q 的目标对象失败: %w", p.name, err)
	}

	inv := &Invocation{
		Name:   p.name,
		Target: target,
		Method: m,
		Args:   args,
		chain:  p.interceptors,
	}
	return inv.Proceed()
}

// Name 被代理的组件名
func (p *Proxy) Name() string { return p.name }

// Target 当前目标对象
func (p *Proxy) Target() (any, error) { return p.source.Target(context.Background()) }

// TargetType 目标对象的类型
func (p *Proxy) TargetType() reflect.Type { return p.source.TargetType() }

// TargetSource 目标源
func (p *Proxy) TargetSource() TargetSource { return p.source }

// Interceptors 拦截器副本
func (p *Proxy) Interceptors() []Interceptor { return slices.Clone(p.interceptors) }

func (p *Proxy) AopInfrastructure() {}

// Invoke 调用方法并返回第一个结果，用于编写类型化的代理适配器
func Invoke[R any](p *Proxy, method string, args ...any) (R, error) {
	results, err := p.Call(method, args...)
	return firstResult[R](method, results, err)
}

// InvokeContext 同 Invoke，目标对象由 ctx 获取
func InvokeContext[R any](ctx context.Context, p *Proxy, method string, args ...any) (R, error) {
	results, err := p.CallContext(ctx, method, args...)
	return firstResult[R](method, results, err)
}

func firstResult[R any](method string, results []any, err error) (R, error) {
	var zero R
	if len(results) == 0 || results[0] == nil {
		return zero, err
	}
	r, ok := results[0].(R)
	if !ok {
		if err == nil {
			err = fmt.Errorf("aop: %s 返回 %T，不是 %v", method, results[0], reflect.TypeFor[R]())
		}
		return zero, err
	}
	return r, err
}

// AopProxy 适配器嵌入 *Proxy 即可获得该方法
func (p *Proxy) AopProxy() *Proxy { return p }

// Unwrap 返回代理或适配器背后的目标对象；普通对象原样返回
func Unwrap(v any) any {
	if a, ok := v.(interface{ AopProxy() *Proxy }); ok {
		if t, err := a.AopProxy().Target(); err == nil {
			return t
		}
	}
	return v
}
