package etcd

import (
	"errors"
	"fmt"

	"github.com/gocrud/container/logging"
)

// Builder etcd 客户端配置构建器
type Builder struct {
	configs []EtcdClientOptions
	errors  []error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// AddClient 添加一个客户端配置
func (b *Builder) AddClient(name string, configure ...func(*EtcdClientOptions)) *Builder {
	for _, c := range b.configs {
		if c.Name == name {
			b.errors = append(b.errors, fmt.Errorf("etcd client '%s' already configured", name))
			return b
		}
	}

	opts := NewDefaultOptions(name)
	for _, fn := range configure {
		fn(opts)
	}
	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid etcd configuration for '%s': %w", name, err))
		return b
	}
	b.configs = append(b.configs, *opts)
	return b
}

// Build 构建客户端工厂
func (b *Builder) Build(logger logging.Logger) (*EtcdClientFactory, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("etcd configuration errors: %w", errors.Join(b.errors...))
	}
	factory := NewEtcdClientFactory(logger)
	for _, opts := range b.configs {
		if err := factory.Register(opts); err != nil {
			return nil, err
		}
	}
	return factory, nil
}
