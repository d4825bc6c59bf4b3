package etcd

import (
	"reflect"

	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// FactoryName 工厂组件名
const FactoryName = "etcd.factory"

// BuilderOption 用于配置 Etcd Builder
type BuilderOption func(*Builder)

// WithClient 添加 Etcd 客户端配置
func WithClient(name string, opts ...func(*EtcdClientOptions)) BuilderOption {
	return func(b *Builder) {
		b.AddClient(name, opts...)
	}
}

// New 启用 Etcd 能力。
// 每个客户端以配置名注册为懒加载的 *clientv3.Client 单例，第一次注入时连接，
// 关闭容器时由工厂统一关闭。
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}
		factory, err := builder.Build(rt.Logger)
		if err != nil {
			return err
		}
		return Register(rt.Store, factory)
	}
}

// Register 将工厂及其客户端注册到描述存储
func Register(store *di.Store, factory *EtcdClientFactory) error {
	if err := store.Register(FactoryName, reflect.TypeOf(factory),
		di.WithSupplier(func() (any, error) { return factory, nil }),
		di.WithDestroyMethod("Close")); err != nil {
		return err
	}

	for _, name := range factory.Names() {
		opts, _ := factory.Options(name)
		clientOpts := []di.Option{
			di.WithFactoryFunc(func() (*clientv3.Client, error) { return factory.Client(name) }),
			di.WithDependsOn(FactoryName),
			di.WithLazy(),
		}
		if opts.Primary {
			clientOpts = append(clientOpts, di.WithPrimary())
		}
		if err := store.Register(name, nil, clientOpts...); err != nil {
			return err
		}
	}
	return nil
}
