package di

import "reflect"

// Option 配置组件描述。
type Option func(*Descriptor)

// WithScope 设置组件的生命周期范围。
func WithScope(scope ScopeType) Option {
	return func(d *Descriptor) {
		d.Scope = scope
	}
}

// WithSingleton 将范围设置为 Singleton（默认）。
func WithSingleton() Option {
	return WithScope(ScopeSingleton)
}

// WithTransient 将范围设置为 Transient。
func WithTransient() Option {
	return WithScope(ScopeTransient)
}

// WithType 设置目标类型，通常用于抽象父描述。
func WithType(typ reflect.Type) Option {
	return func(d *Descriptor) {
		d.Type = typ
	}
}

// WithSupplier 使用 supplier 创建实例。
func WithSupplier(fn func() (any, error)) Option {
	return func(d *Descriptor) {
		d.Supplier = fn
	}
}

// WithConstructor 声明构造函数，参数将被注入。
func WithConstructor(fn any, inject ...Marker) Option {
	return func(d *Descriptor) {
		c := Constructor{Fn: fn}
		if len(inject) > 0 {
			c.Inject = inject[0]
		}
		d.Constructors = append(d.Constructors, c)
	}
}

// WithFactoryFunc 注册一个工厂函数来创建实例。
// 工厂函数可以接受参数，这些参数将被注入。
func WithFactoryFunc(fn any) Option {
	return func(d *Descriptor) {
		d.FactoryFunc = fn
	}
}

// WithFactoryMethod 调用另一个组件的方法创建实例。
func WithFactoryMethod(bean, method string) Option {
	return func(d *Descriptor) {
		d.FactoryBean = bean
		d.FactoryMethod = method
	}
}

// WithProperty 声明属性值，字符串会被转换为字段类型。
func WithProperty(name string, value any) Option {
	return func(d *Descriptor) {
		d.Properties = append(d.Properties, PropertyValue{Name: name, Value: value})
	}
}

// WithRef 将名为 ref 的组件注入属性。
func WithRef(name, ref string) Option {
	return func(d *Descriptor) {
		d.Properties = append(d.Properties, PropertyValue{Name: name, Ref: ref})
	}
}

// WithInitMethod 声明初始化方法，方法不存在时报错。
func WithInitMethod(name string) Option {
	return func(d *Descriptor) {
		d.InitMethod = name
		d.InitMethodOptional = false
	}
}

// WithOptionalInitMethod 声明初始化方法，方法不存在时忽略。
func WithOptionalInitMethod(name string) Option {
	return func(d *Descriptor) {
		d.InitMethod = name
		d.InitMethodOptional = true
	}
}

// WithDestroyMethod 声明销毁方法，InferredDestroyMethod 表示 Close 或 Shutdown。
func WithDestroyMethod(name string) Option {
	return func(d *Descriptor) {
		d.DestroyMethod = name
	}
}

// WithAutowire 设置未标记字段的自动装配模式。
func WithAutowire(mode AutowireMode) Option {
	return func(d *Descriptor) {
		d.Autowire = mode
	}
}

// WithPrimary 按类型解析存在多个候选时优先选择。
func WithPrimary() Option {
	return func(d *Descriptor) {
		d.Primary = true
	}
}

// WithLazy 不参与单例预实例化。
func WithLazy() Option {
	return func(d *Descriptor) {
		d.Lazy = true
	}
}

// WithDependsOn 在创建前先创建指定组件。
func WithDependsOn(names ...string) Option {
	return func(d *Descriptor) {
		d.DependsOn = append(d.DependsOn, names...)
	}
}

// WithParent 继承父描述。
func WithParent(name string) Option {
	return func(d *Descriptor) {
		d.Parent = name
	}
}

// WithAbstract 仅作为父描述，不能直接创建。
func WithAbstract() Option {
	return func(d *Descriptor) {
		d.Abstract = true
	}
}
