package database

import (
	"reflect"

	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"gorm.io/gorm"
)

// FactoryName 工厂组件名
const FactoryName = "database.factory"

// BuilderOption 用于配置 Database Builder
type BuilderOption func(*Builder)

// WithDatabase 添加数据库配置
func WithDatabase(name string, dialector gorm.Dialector, opts ...func(*DatabaseOptions)) BuilderOption {
	return func(b *Builder) {
		b.Add(name, dialector, opts...)
	}
}

// New 启用数据库能力。
// 工厂注册为组件 database.factory，关闭容器时关闭所有连接；
// 每个数据库以配置名注册为 *gorm.DB 单例，依赖于工厂，因此先于工厂销毁。
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

// Register 将工厂及其数据库注册到描述存储
func Register(store *di.Store, factory *DatabaseFactory) error {
	if err := store.Register(FactoryName, reflect.TypeOf(factory),
		di.WithSupplier(func() (any, error) { return factory, nil }),
		di.WithDestroyMethod("Close")); err != nil {
		return err
	}

	for _, name := range factory.Names() {
		opts, _ := factory.Options(name)
		dbOpts := []di.Option{
			di.WithFactoryFunc(func() (*gorm.DB, error) { return factory.Open(name) }),
			di.WithDependsOn(FactoryName),
		}
		if opts.Primary {
			dbOpts = append(dbOpts, di.WithPrimary())
		}
		if err := store.Register(name, nil, dbOpts...); err != nil {
			return err
		}
	}
	return nil
}
