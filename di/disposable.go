package di

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/gocrud/container/logging"
)

// disposer 单例的销毁回调。
type disposer struct {
	name          string
	instance      any
	destroyMethod string
}

// RegisterDisposable 如果实例需要销毁，记录其销毁回调。
func (c *Container) RegisterDisposable(name string, instance any, d *Descriptor) {
	method := ""
	if d != nil {
		method = destroyMethodOf(instance, d.DestroyMethod)
	}
	_, disposable := instance.(Disposable)
	if !disposable && method == "" && !c.Pipeline().RequiresDestruction(instance) {
		return
	}
	c.registry.addDisposer(name, &disposer{name: name, instance: instance, destroyMethod: method})
}

// destroyMethodOf 返回实际存在的销毁方法名。
func destroyMethodOf(instance any, declared string) string {
	if declared == "" {
		return ""
	}
	v := reflect.ValueOf(instance)
	if declared != InferredDestroyMethod {
		return declared
	}
	for _, m := range []string{"Close", "Shutdown"} {
		if v.MethodByName(m).IsValid() {
			return m
		}
	}
	return ""
}

// DestroyComponent 销毁一个不由容器管理生命周期的实例，通常是 transient 组件。
func (c *Container) DestroyComponent(ctx context.Context, name string, instance any) error {
	d, err := c.store.MergedDescriptor(name)
	if err != nil {
		return err
	}
	return c.destroy(ctx, &disposer{
		name:          name,
		instance:      instance,
		destroyMethod: destroyMethodOf(instance, d.DestroyMethod),
	})
}

func (c *Container) destroy(ctx context.Context, d *disposer) error {
	var errs []error
	if err := c.Pipeline().BeforeDestruction(ctx, d.instance, d.name); err != nil {
		errs = append(errs, err)
	}

	disposable, isDisposable := d.instance.(Disposable)
	if isDisposable {
		if err := disposable.Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if d.destroyMethod != "" && !(isDisposable && d.destroyMethod == "Destroy") {
		m := reflect.ValueOf(d.instance).MethodByName(d.destroyMethod)
		if !m.IsValid() {
			errs = append(errs, configErrorf(d.name, "销毁方法 %s 不存在", d.destroyMethod))
		} else if err := callLifecycle(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("di: 销毁组件 %q 失败: %w", d.name, err)
	}
	return nil
}

// destroySingleton 先销毁依赖它的组件，再销毁自身。
func (c *Container) destroySingleton(ctx context.Context, name string, errs *[]error) {
	d, dependents := c.registry.takeSingleton(name)
	for _, dep := range dependents {
		c.destroySingleton(ctx, dep, errs)
	}
	if d == nil {
		return
	}
	c.logger.Debug("销毁组件", logging.Component(name))
	if err := c.destroy(ctx, d); err != nil {
		*errs = append(*errs, err)
	}
}

// Close 按注册的逆序销毁所有单例，依赖方先于被依赖方。
// 重复调用无效果。
func (c *Container) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	names := c.registry.disposerNames()
	for _, name := range slices.Backward(names) {
		c.destroySingleton(ctx, name, &errs)
	}
	c.registry.clear()

	c.logger.Info("容器已关闭", logging.Field{Key: "errors", Value: len(errs)})
	return errors.Join(errs...)
}
