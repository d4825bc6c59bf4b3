package core

import (
	"fmt"
	"reflect"

	"github.com/gocrud/container/di"
	"github.com/gocrud/container/hosting"
)

var hostedServiceType = reflect.TypeFor[hosting.HostedService]()

// WithHostedService 注册一个托管服务组件
// 框架会在 Start 时于独立的 goroutine 中调用其 Start，在 Stop 时调用其 Stop。
func WithHostedService(name string, typ reflect.Type, opts ...di.Option) Option {
	return func(rt *Runtime) error {
		if typ != nil && !typ.Implements(hostedServiceType) {
			return fmt.Errorf("core: 托管服务 %q 的类型 %v 没有实现 HostedService", name, typ)
		}
		if err := rt.Register(name, typ, opts...); err != nil {
			return fmt.Errorf("core: 注册托管服务 %q 失败: %w", name, err)
		}
		rt.hosted = append(rt.hosted, name)
		return nil
	}
}

// WithWorker 将一个阻塞的函数注册为后台服务
func WithWorker(name string, fn hosting.WorkerFunc) Option {
	return func(rt *Runtime) error {
		worker := hosting.NewWorker(fn)
		if err := rt.Register(name, reflect.TypeOf(worker),
			di.WithSupplier(func() (any, error) { return worker, nil })); err != nil {
			return err
		}
		rt.hosted = append(rt.hosted, name)
		return nil
	}
}
