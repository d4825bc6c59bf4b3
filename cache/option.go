package cache

import (
	"context"

	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"github.com/redis/go-redis/v9"
)

// InterceptorName 缓存拦截器的组件名
const InterceptorName = "cache.interceptor"

type options struct {
	store     Store
	redis     string
	keyPrefix string
}

// Option 配置缓存支持
type Option func(*options)

// WithStore 使用给定的存储，默认为内存存储
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithRedis 使用名为 client 的 *redis.Client 组件作为存储
func WithRedis(client string) Option {
	return func(o *options) { o.redis = client }
}

// WithKeyPrefix Redis 存储的键前缀
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.keyPrefix = prefix }
}

// New 启用声明式缓存。
// 拦截器注册为组件 cache.interceptor，作为公共拦截器按名称解析。
func New(rules RuleSource, opts ...Option) core.Option {
	return func(rt *core.Runtime) error {
		o := &options{}
		for _, opt := range opts {
			opt(o)
		}
		if err := register(rt.Store, rules, o); err != nil {
			return err
		}
		rt.AddAdvice(Advice(rules))
		rt.Features.Set(rules)
		return core.WithCommonInterceptors(InterceptorName)(rt)
	}
}

func register(store *di.Store, rules RuleSource, o *options) error {
	if o.redis == "" {
		s := o.store
		if s == nil {
			s = NewMemoryStore()
		}
		return di.Register[*Interceptor](store, InterceptorName,
			di.WithFactoryFunc(func(c *di.Container) *Interceptor {
				return NewInterceptor(s, rules, c.Logger())
			}))
	}

	return di.Register[*Interceptor](store, InterceptorName,
		di.WithDependsOn(o.redis),
		di.WithFactoryFunc(func(ctx context.Context, c *di.Container) (*Interceptor, error) {
			client, err := di.Get[*redis.Client](ctx, c, o.redis)
			if err != nil {
				return nil, err
			}
			return NewInterceptor(NewRedisStore(client, o.keyPrefix), rules, c.Logger()), nil
		}))
}
