package di

import (
	"context"
	"reflect"

	"github.com/gocrud/container/logging"
)

// doGet 获取或创建组件。
func (c *Container) doGet(ctx context.Context, name string, args []any) (any, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if v, ok := c.registry.finishedInstance(name); ok {
		return v, nil
	}

	current := chainFrom(ctx)
	if v, ok, err := c.registry.earlyReference(current, name); ok {
		if err != nil {
			return nil, &CreationError{Name: name, Phase: PhaseReconcile, Err: err}
		}
		c.logger.Info("返回提前暴露的引用",
			logging.Component(name),
			logging.Field{Key: "chain", Value: current.names()})
		return v, nil
	}

	d, err := c.store.MergedDescriptor(name)
	if err != nil {
		return nil, err
	}
	if d.Abstract {
		return nil, configErrorf(name, "抽象描述不能创建实例")
	}
	if current.contains(name) {
		return nil, &CircularReferenceError{Chain: append(current.names(), name)}
	}

	cctx := withCreation(ctx, name)
	if d.IsSingleton() {
		return c.registry.getOrCreate(chainFrom(cctx), name, func() (any, error) {
			return c.createComponent(cctx, d, args)
		})
	}
	return c.createComponent(cctx, d, args)
}

// createComponent 执行完整的创建流程：
// depends-on、短路检查、实例化、提前暴露、填充、初始化、引用校正、注册销毁回调。
func (c *Container) createComponent(ctx context.Context, d *Descriptor, args []any) (any, error) {
	name := d.Name
	c.logger.Debug("创建组件",
		logging.Component(name),
		logging.Field{Key: "scope", Value: d.Scope.String()})

	for _, dep := range d.DependsOn {
		if dep == name || c.registry.isDependent(name, dep) {
			return nil, &CreationError{Name: name, Phase: PhaseDependsOn,
				Err: configErrorf(name, "与 %q 形成循环 depends-on", dep)}
		}
		c.registry.registerDependent(dep, name)
		if _, err := c.GetOrCreate(ctx, dep); err != nil {
			return nil, &CreationError{Name: name, Phase: PhaseDependsOn, Err: err}
		}
	}

	short, err := c.Pipeline().BeforeInstantiation(ctx, c.declaredType(d), name)
	if err != nil {
		return nil, &CreationError{Name: name, Phase: PhaseShortCircuit, Err: err}
	}
	if short != nil {
		out, err := c.Pipeline().AfterInit(ctx, short, name)
		if err != nil {
			return nil, &CreationError{Name: name, Phase: PhaseShortCircuit, Err: err}
		}
		c.logger.Debug("实例化被短路",
			logging.Component(name),
			logging.Field{Key: "type", Value: reflect.TypeOf(out).String()})
		return out, nil
	}

	raw, err := c.instantiate(ctx, d, args)
	if err != nil {
		return nil, &CreationError{Name: name, Phase: PhaseInstantiate, Err: err}
	}
	if err := c.Pipeline().MergedDescriptorReady(ctx, d, reflect.TypeOf(raw), name); err != nil {
		return nil, &CreationError{Name: name, Phase: PhaseInstantiate, Err: err}
	}

	earlyExposure := d.IsSingleton() && c.allowCircular && c.registry.isInProgress(name)
	if earlyExposure {
		c.registry.addEarlyFactory(name, func() (any, error) {
			return c.Pipeline().EarlyReference(ctx, raw, name)
		})
	}

	if err := c.populate(ctx, d, raw); err != nil {
		return nil, &CreationError{Name: name, Phase: PhasePopulate, Err: err}
	}
	exposed, err := c.initialize(ctx, d, raw)
	if err != nil {
		return nil, &CreationError{Name: name, Phase: PhaseInitialize, Err: err}
	}

	if earlyExposure {
		if ref, ok := c.registry.materializedEarly(name); ok {
			if SameInstance(exposed, raw) {
				exposed = ref
			} else if !c.allowRawInjection {
				if deps := c.registry.dependentsOf(name); len(deps) > 0 {
					return nil, &CreationError{Name: name, Phase: PhaseReconcile,
						Err: &WrappingConsistencyError{Name: name, Dependents: deps}}
				}
			}
		}
	}

	if d.IsSingleton() {
		c.RegisterDisposable(name, raw, d)
	}
	return exposed, nil
}

// initialize 依次执行感知回调、初始化前钩子、初始化方法、初始化后钩子。
func (c *Container) initialize(ctx context.Context, d *Descriptor, instance any) (any, error) {
	if a, ok := instance.(NameAware); ok {
		a.SetComponentName(d.Name)
	}
	if a, ok := instance.(ContainerAware); ok {
		a.SetContainer(c)
	}

	current, err := c.Pipeline().BeforeInit(ctx, instance, d.Name)
	if err != nil {
		return nil, err
	}
	if err := c.invokeInitMethods(ctx, d, current); err != nil {
		return nil, err
	}
	return c.Pipeline().AfterInit(ctx, current, d.Name)
}

func (c *Container) invokeInitMethods(ctx context.Context, d *Descriptor, instance any) error {
	initializer, isInitializer := instance.(Initializer)
	if isInitializer {
		if err := initializer.Init(ctx); err != nil {
			return err
		}
	}

	if d.InitMethod == "" || (isInitializer && d.InitMethod == "Init") {
		return nil
	}
	m := reflect.ValueOf(instance).MethodByName(d.InitMethod)
	if !m.IsValid() {
		if d.InitMethodOptional {
			c.logger.Debug("可选初始化方法不存在",
				logging.Component(d.Name),
				logging.Field{Key: "method", Value: d.InitMethod})
			return nil
		}
		return configErrorf(d.Name, "初始化方法 %s 不存在", d.InitMethod)
	}
	return callLifecycle(ctx, m)
}

// declaredType 创建前可知的原始类型，工厂按返回值推断。
func (c *Container) declaredType(d *Descriptor) reflect.Type {
	if d.Type != nil {
		return d.Type
	}
	switch {
	case d.FactoryFunc != nil:
		if t := reflect.TypeOf(d.FactoryFunc); t.Kind() == reflect.Func && t.NumOut() > 0 {
			return t.Out(0)
		}
	case d.FactoryMethod != "" && d.FactoryBean != "":
		owner := c.TypeOf(d.FactoryBean)
		if owner == nil {
			return nil
		}
		if m, ok := owner.MethodByName(d.FactoryMethod); ok && m.Type.NumOut() > 0 {
			return m.Type.Out(0)
		}
	}
	return nil
}

// SameInstance 判断两个值是否为同一个对象，不可比较的值返回 false。
func SameInstance(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() || va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Slice:
		return va.Pointer() == vb.Pointer()
	}
	if va.Comparable() {
		return va.Equal(vb)
	}
	return false
}
