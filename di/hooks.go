package di

import (
	"context"
	"math"
	"reflect"
)

const (
	HighestPrecedence = math.MinInt32
	LowestPrecedence  = math.MaxInt32
)

// Ordered 钩子的排序值，越小越先执行。
type Ordered interface {
	Order() int
}

// PriorityOrdered 优先于所有普通 Ordered 钩子执行。
type PriorityOrdered interface {
	Ordered
	PriorityOrdered()
}

// OrderOf 返回对象的排序值，未实现 Ordered 时为 LowestPrecedence。
func OrderOf(v any) int {
	if o, ok := v.(Ordered); ok {
		return o.Order()
	}
	return LowestPrecedence
}

// InstantiationHook 在实例化之前调用，返回非 nil 时跳过正常创建流程。
type InstantiationHook interface {
	BeforeInstantiation(ctx context.Context, typ reflect.Type, name string) (any, error)
}

// PostInstantiationHook 返回 false 时跳过属性填充。
type PostInstantiationHook interface {
	AfterInstantiation(ctx context.Context, instance any, name string) (bool, error)
}

// PropertyHook 在属性应用前修改属性值，返回 nil 时不再应用属性。
type PropertyHook interface {
	MutateProperties(ctx context.Context, props []PropertyValue, instance any, name string) ([]PropertyValue, error)
}

// DescriptorHook 在原始类型确定后收到合并的描述。
type DescriptorHook interface {
	MergedDescriptorReady(ctx context.Context, d *Descriptor, typ reflect.Type, name string) error
}

// EarlyReferenceHook 为循环依赖提供提前引用。
type EarlyReferenceHook interface {
	EarlyReference(ctx context.Context, instance any, name string) (any, error)
}

// InitHook 在初始化回调之前调用。
type InitHook interface {
	BeforeInit(ctx context.Context, instance any, name string) (any, error)
}

// PostInitHook 在初始化回调之后调用，可以用包装对象替换实例。
type PostInitHook interface {
	AfterInit(ctx context.Context, instance any, name string) (any, error)
}

// ConstructorHook 决定候选构造函数，返回 nil 表示不干预。
type ConstructorHook interface {
	CandidateConstructors(ctx context.Context, typ reflect.Type, name string, declared []Constructor) ([]Constructor, error)
}

// TypePredictor 在实例创建之前预测最终暴露的类型。
type TypePredictor interface {
	PredictType(ctx context.Context, typ reflect.Type, name string) reflect.Type
}

// DestructionHook 在实例销毁前调用。
type DestructionHook interface {
	BeforeDestruction(ctx context.Context, instance any, name string) error
	RequiresDestruction(instance any) bool
}

// NameAware 在初始化前收到组件名。
type NameAware interface {
	SetComponentName(name string)
}

// ContainerAware 在初始化前收到所属容器。
type ContainerAware interface {
	SetContainer(c *Container)
}

// Initializer 属性填充完成后调用。
type Initializer interface {
	Init(ctx context.Context) error
}

// Disposable 容器关闭时调用。
type Disposable interface {
	Destroy(ctx context.Context) error
}

// SingletonsReady 所有非懒加载单例创建完成后调用。
type SingletonsReady interface {
	SingletonsReady(ctx context.Context) error
}

// MethodInjectable 列出需要注入参数的方法名，后缀 "?" 表示可选。
// 该方法在零值上调用，不能依赖实例状态。
type MethodInjectable interface {
	InjectionMethods() []string
}
