package aop

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/gocrud/container/di"
)

// OriginalSuffix 目标源内部创建的原始实例名称后缀，这些实例不会被包装。
const OriginalSuffix = ".ORIGINAL"

// TargetSource 提供代理调用的目标对象。
// ctx 来自调用方，需要创建目标的实现借助它加入当前的创建调用链。
type TargetSource interface {
	Target(ctx context.Context) (any, error)
	TargetType() reflect.Type
}

// SingletonTarget 固定的目标对象
type SingletonTarget struct {
	target any
}

func NewSingletonTarget(target any) *SingletonTarget {
	return &SingletonTarget{target: target}
}

func (s *SingletonTarget) Target(context.Context) (any, error) { return s.target, nil }

func (s *SingletonTarget) TargetType() reflect.Type { return reflect.TypeOf(s.target) }

func (s *SingletonTarget) AopInfrastructure() {}

// LazyTarget 首次调用时才创建目标对象
type LazyTarget struct {
	typ    reflect.Type
	create func(ctx context.Context) (any, error)

	once   sync.Once
	target any
	err    error
}

func NewLazyTarget(typ reflect.Type, create func(ctx context.Context) (any, error)) *LazyTarget {
	return &LazyTarget{typ: typ, create: create}
}

// Target 第一次调用时用调用方的 ctx 创建目标，之后返回同一结果
func (l *LazyTarget) Target(ctx context.Context) (any, error) {
	l.once.Do(func() {
		l.target, l.err = l.create(ctx)
	})
	return l.target, l.err
}

func (l *LazyTarget) TargetType() reflect.Type { return l.typ }

func (l *LazyTarget) AopInfrastructure() {}

// TargetSourceCreator 为组件提供自定义目标源，返回 nil 表示不处理
type TargetSourceCreator interface {
	TargetSource(ctx context.Context, typ reflect.Type, name string) (TargetSource, error)
}

// TargetSourceCreatorFunc 函数形式的 TargetSourceCreator
type TargetSourceCreatorFunc func(ctx context.Context, typ reflect.Type, name string) (TargetSource, error)

func (f TargetSourceCreatorFunc) TargetSource(ctx context.Context, typ reflect.Type, name string) (TargetSource, error) {
	return f(ctx, typ, name)
}

// LazyInitTargetSources 为懒加载的单例创建 LazyTarget。
// 目标在第一次方法调用时以 <name>.ORIGINAL 独立创建。
type LazyInitTargetSources struct {
	container *di.Container
}

func NewLazyInitTargetSources() *LazyInitTargetSources {
	return &LazyInitTargetSources{}
}

func (l *LazyInitTargetSources) SetContainer(c *di.Container) { l.container = c }

func (l *LazyInitTargetSources) TargetSource(_ context.Context, typ reflect.Type, name string) (TargetSource, error) {
	if l.container == nil {
		return nil, nil
	}
	d, err := l.container.Store().MergedDescriptor(name)
	if err != nil || !d.Lazy || !d.IsSingleton() {
		return nil, nil
	}
	if typ == nil {
		return nil, fmt.Errorf("aop: 懒加载组件 %q 无法确定类型", name)
	}
	original := *d
	original.Name = name + OriginalSuffix
	original.Lazy = false
	c := l.container
	return NewLazyTarget(typ, func(ctx context.Context) (any, error) {
		return c.CreateIndependent(ctx, &original)
	}), nil
}
