package di

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
)

// instantiate 按构造方式创建原始实例。
func (c *Container) instantiate(ctx context.Context, d *Descriptor, args []any) (any, error) {
	switch d.ResolvedStrategy() {
	case StrategySupplier:
		if d.Supplier == nil {
			return nil, configErrorf(d.Name, "缺少 supplier")
		}
		v, err := d.Supplier()
		if err != nil {
			return nil, fmt.Errorf("di: supplier 失败: %w", err)
		}
		if v == nil {
			return nil, fmt.Errorf("di: supplier 返回了 nil 实例")
		}
		return v, nil
	case StrategyFactoryMethod:
		return c.instantiateFactoryMethod(ctx, d, args)
	default:
		return c.autowireConstructor(ctx, d, args)
	}
}

func (c *Container) instantiateFactoryMethod(ctx context.Context, d *Descriptor, args []any) (any, error) {
	var fn reflect.Value
	switch {
	case d.FactoryFunc != nil:
		fn = reflect.ValueOf(d.FactoryFunc)
		if fn.Kind() != reflect.Func {
			return nil, configErrorf(d.Name, "工厂必须是函数，得到 %T", d.FactoryFunc)
		}
	case d.FactoryBean != "":
		bean, err := c.GetOrCreate(ctx, d.FactoryBean)
		if err != nil {
			return nil, err
		}
		c.registry.registerDependent(d.FactoryBean, d.Name)
		fn = reflect.ValueOf(bean).MethodByName(d.FactoryMethod)
		if !fn.IsValid() {
			return nil, configErrorf(d.Name, "组件 %q (%T) 没有工厂方法 %s", d.FactoryBean, bean, d.FactoryMethod)
		}
	default:
		return nil, configErrorf(d.Name, "工厂方法 %s 缺少所属组件", d.FactoryMethod)
	}

	if fn.Type().NumOut() == 0 {
		return nil, configErrorf(d.Name, "工厂没有返回值，无法确定类型")
	}

	argv, err := c.arguments(ctx, fn.Type(), d.Name, args)
	if err != nil {
		return nil, err
	}
	return invoke(fn, argv, "工厂")
}

// autowireConstructor 选择候选构造函数并注入参数。
// 参数最多的候选优先；参数无法满足时尝试下一个，零参数构造函数兜底。
func (c *Container) autowireConstructor(ctx context.Context, d *Descriptor, args []any) (any, error) {
	candidates, err := c.Pipeline().CandidateConstructors(ctx, d.Type, d.Name, d.Constructors)
	if err != nil {
		return nil, err
	}

	if candidates == nil {
		switch {
		case len(d.Constructors) == 0:
			return instantiateZero(d)
		case d.Autowire == AutowireConstructor, len(args) > 0, len(d.Constructors) == 1:
			candidates = d.Constructors
		default:
			i := slices.IndexFunc(d.Constructors, func(ctor Constructor) bool {
				t := reflect.TypeOf(ctor.Fn)
				return t != nil && t.Kind() == reflect.Func && t.NumIn() == 0
			})
			if i < 0 {
				return nil, configErrorf(d.Name, "存在多个构造函数但没有注入标记，也没有零参数构造函数")
			}
			candidates = d.Constructors[i : i+1]
		}
	}
	if len(candidates) == 0 {
		return instantiateZero(d)
	}

	sorted := slices.Clone(candidates)
	for _, ctor := range sorted {
		if t := reflect.TypeOf(ctor.Fn); t == nil || t.Kind() != reflect.Func {
			return nil, configErrorf(d.Name, "构造函数必须是函数，得到 %T", ctor.Fn)
		}
	}
	slices.SortStableFunc(sorted, func(a, b Constructor) int {
		return reflect.TypeOf(b.Fn).NumIn() - reflect.TypeOf(a.Fn).NumIn()
	})

	if len(args) > 0 {
		for _, ctor := range sorted {
			fn := reflect.ValueOf(ctor.Fn)
			if fn.Type().NumIn() != len(args) || fn.Type().IsVariadic() {
				continue
			}
			argv, err := explicitArguments(fn.Type(), args)
			if err != nil {
				continue
			}
			return invoke(fn, argv, "构造函数")
		}
		return nil, configErrorf(d.Name, "没有与 %d 个显式参数匹配的构造函数", len(args))
	}

	var first error
	for _, ctor := range sorted {
		fn := reflect.ValueOf(ctor.Fn)
		argv, err := c.arguments(ctx, fn.Type(), d.Name, nil)
		if err != nil {
			if ownParameterUnsatisfied(err, d.Name) {
				if first == nil {
					first = err
				}
				continue
			}
			return nil, err
		}
		return invoke(fn, argv, "构造函数")
	}
	return nil, first
}

// ownParameterUnsatisfied 只有构造函数自身的参数找不到候选时才换下一个构造函数，
// 依赖组件创建失败的错误原样返回。
func ownParameterUnsatisfied(err error, component string) bool {
	var ue *UnsatisfiedDependencyError
	if !errors.As(err, &ue) || ue.Component != component {
		return false
	}
	var ce *CreationError
	return !errors.As(err, &ce)
}

// arguments 解析函数参数；有显式参数时按位置转换。
func (c *Container) arguments(ctx context.Context, fnType reflect.Type, component string, explicit []any) ([]reflect.Value, error) {
	if len(explicit) > 0 {
		if len(explicit) != fnType.NumIn() {
			return nil, configErrorf(component, "需要 %d 个参数，得到 %d 个", fnType.NumIn(), len(explicit))
		}
		return explicitArguments(fnType, explicit)
	}

	argv := make([]reflect.Value, fnType.NumIn())
	for i := range argv {
		pt := fnType.In(i)
		if pt == contextType {
			argv[i] = reflect.ValueOf(ctx)
			continue
		}

		member := fmt.Sprintf("参数 %d", i)
		res, err := c.ResolveDependency(ctx, Query{Type: pt, Required: true, Component: component, Member: member})
		if err != nil {
			return nil, err
		}
		if !res.Found {
			return nil, &UnsatisfiedDependencyError{Component: component, Member: member, Type: pt}
		}
		v, err := convertValue(res.Value, pt)
		if err != nil {
			return nil, err
		}
		argv[i] = v
	}
	return argv, nil
}

func explicitArguments(fnType reflect.Type, explicit []any) ([]reflect.Value, error) {
	argv := make([]reflect.Value, len(explicit))
	for i, a := range explicit {
		v, err := convertValue(a, fnType.In(i))
		if err != nil {
			return nil, err
		}
		argv[i] = v
	}
	return argv, nil
}

// instantiateZero 没有构造函数时创建零值实例。
func instantiateZero(d *Descriptor) (any, error) {
	typ := d.Type
	switch {
	case typ == nil:
		return nil, configErrorf(d.Name, "无法确定实例类型")
	case typ.Kind() == reflect.Ptr && typ.Elem().Kind() == reflect.Struct:
		return reflect.New(typ.Elem()).Interface(), nil
	case typ.Kind() == reflect.Struct:
		return reflect.New(typ).Interface(), nil
	}
	return nil, configErrorf(d.Name, "类型 %v 没有构造函数", typ)
}
