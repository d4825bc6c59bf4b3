package redis

import (
	"reflect"

	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"github.com/redis/go-redis/v9"
)

// FactoryName 工厂组件名
const FactoryName = "redis.factory"

// BuilderOption 用于配置 Redis Builder
type BuilderOption func(*Builder)

// WithClient 添加 Redis 客户端配置
func WithClient(name string, opts ...func(*RedisClientOptions)) BuilderOption {
	return func(b *Builder) {
		b.AddClient(name, opts...)
	}
}

// New 启用 Redis 能力。
// 每个客户端以配置名注册为 *redis.Client 单例，关闭容器时由工厂统一关闭。
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
func Register(store *di.Store, factory *RedisClientFactory) error {
	if err := store.Register(FactoryName, reflect.TypeOf(factory),
		di.WithSupplier(func() (any, error) { return factory, nil }),
		di.WithDestroyMethod("Close")); err != nil {
		return err
	}

	for _, name := range factory.Names() {
		opts, _ := factory.Options(name)
		clientOpts := []di.Option{
			di.WithFactoryFunc(func() (*redis.Client, error) { return factory.Client(name) }),
			di.WithDependsOn(FactoryName),
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
