package tx

import (
	"context"

	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"gorm.io/gorm"
)

// InterceptorName 事务拦截器的组件名
const InterceptorName = "tx.interceptor"

type options struct {
	database string
}

// Option 配置事务支持
type Option func(*options)

// WithDatabase 使用指定名称的 *gorm.DB 组件，默认为 "default"
func WithDatabase(name string) Option {
	return func(o *options) { o.database = name }
}

// New 启用声明式事务。
// 拦截器注册为组件 tx.interceptor，作为公共拦截器按名称解析；
// 有方法匹配 source 的组件会被自动代理。
func New(source AttributeSource, opts ...Option) core.Option {
	return func(rt *core.Runtime) error {
		o := &options{database: "default"}
		for _, opt := range opts {
			opt(o)
		}

		if err := Register(rt.Store, source, o.database); err != nil {
			return err
		}
		rt.AddAdvice(Advice(source))
		return core.WithCommonInterceptors(InterceptorName)(rt)
	}
}

// Register 注册事务拦截器组件，它依赖名为 database 的 *gorm.DB 组件
func Register(store *di.Store, source AttributeSource, database string) error {
	return di.Register[*Interceptor](store, InterceptorName,
		di.WithDependsOn(database),
		di.WithFactoryFunc(func(ctx context.Context, c *di.Container) (*Interceptor, error) {
			db, err := di.Get[*gorm.DB](ctx, c, database)
			if err != nil {
				return nil, err
			}
			return NewInterceptor(db, source, c.Logger()), nil
		}))
}
