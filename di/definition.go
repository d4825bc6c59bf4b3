package di

import (
	"reflect"
	"slices"
)

// ScopeType 定义了组件的生命周期。
type ScopeType int

const (
	// ScopeSingleton 每个容器创建一个实例。
	ScopeSingleton ScopeType = iota
	// ScopeTransient 每次请求创建一个新实例。
	ScopeTransient
)

func (s ScopeType) String() string {
	if s == ScopeTransient {
		return "transient"
	}
	return "singleton"
}

// Strategy 实例构造方式。
type Strategy int

const (
	// StrategyAuto 根据描述推断构造方式。
	StrategyAuto Strategy = iota
	StrategySupplier
	StrategyFactoryMethod
	StrategyConstructor
)

// AutowireMode 未标记字段的自动装配模式。
type AutowireMode int

const (
	AutowireNo AutowireMode = iota
	AutowireByName
	AutowireByType
	AutowireConstructor
)

// Marker 构造函数的注入标记。
type Marker int

const (
	MarkerNone Marker = iota
	// MarkerRequired 唯一候选，所有参数必须可解析。
	MarkerRequired
	// MarkerOptional 候选之一，参数不可解析时尝试下一个。
	MarkerOptional
)

// InferredDestroyMethod 使用 Close 或 Shutdown 作为销毁方法。
const InferredDestroyMethod = "(inferred)"

// Constructor 声明的构造函数。
type Constructor struct {
	Fn     any
	Inject Marker
}

// PropertyValue 声明的属性赋值。Ref 非空时注入同名组件。
type PropertyValue struct {
	Name  string
	Value any
	Ref   string
}

// Descriptor 描述如何构建和配置一个命名组件。
type Descriptor struct {
	Name     string
	Type     reflect.Type
	Scope    ScopeType
	Strategy Strategy

	Supplier      func() (any, error)
	FactoryFunc   any
	FactoryBean   string
	FactoryMethod string
	Constructors  []Constructor

	Properties []PropertyValue

	InitMethod         string
	InitMethodOptional bool
	DestroyMethod      string

	Autowire  AutowireMode
	Primary   bool
	Lazy      bool
	DependsOn []string
	Parent    string
	Abstract  bool
}

// IsSingleton 是否为共享作用域。
func (d *Descriptor) IsSingleton() bool {
	return d.Scope == ScopeSingleton
}

// ResolvedStrategy 返回实际使用的构造方式。
func (d *Descriptor) ResolvedStrategy() Strategy {
	if d.Strategy != StrategyAuto {
		return d.Strategy
	}
	switch {
	case d.Supplier != nil:
		return StrategySupplier
	case d.FactoryFunc != nil, d.FactoryMethod != "":
		return StrategyFactoryMethod
	default:
		return StrategyConstructor
	}
}

// Property 查找声明的属性。
func (d *Descriptor) Property(name string) (PropertyValue, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyValue{}, false
}

func (d *Descriptor) clone() *Descriptor {
	cp := *d
	cp.Constructors = slices.Clone(d.Constructors)
	cp.Properties = slices.Clone(d.Properties)
	cp.DependsOn = slices.Clone(d.DependsOn)
	return &cp
}

// mergeDescriptor 用子描述覆盖父描述。
// 作用域、懒加载、depends-on、自动装配、primary 与 abstract 总是取自子描述。
func mergeDescriptor(parent, child *Descriptor) *Descriptor {
	out := parent.clone()
	out.Name = child.Name
	out.Parent = child.Parent

	if child.Type != nil {
		out.Type = child.Type
	}
	if child.Strategy != StrategyAuto {
		out.Strategy = child.Strategy
	}
	if child.Supplier != nil {
		out.Supplier = child.Supplier
	}
	if child.FactoryFunc != nil {
		out.FactoryFunc = child.FactoryFunc
	}
	if child.FactoryMethod != "" {
		out.FactoryBean = child.FactoryBean
		out.FactoryMethod = child.FactoryMethod
	}
	if len(child.Constructors) > 0 {
		out.Constructors = slices.Clone(child.Constructors)
	}
	if child.InitMethod != "" {
		out.InitMethod = child.InitMethod
		out.InitMethodOptional = child.InitMethodOptional
	}
	if child.DestroyMethod != "" {
		out.DestroyMethod = child.DestroyMethod
	}

	// 属性按名称合并
	for _, p := range child.Properties {
		i := slices.IndexFunc(out.Properties, func(q PropertyValue) bool { return q.Name == p.Name })
		if i >= 0 {
			out.Properties[i] = p
		} else {
			out.Properties = append(out.Properties, p)
		}
	}

	out.Scope = child.Scope
	out.Lazy = child.Lazy
	out.DependsOn = slices.Clone(child.DependsOn)
	out.Autowire = child.Autowire
	out.Primary = child.Primary
	out.Abstract = child.Abstract
	return out
}
