package database

import (
	"errors"
	"fmt"

	"github.com/gocrud/container/logging"
	"gorm.io/gorm"
)

// Builder 数据库配置构建器
type Builder struct {
	configs []DatabaseOptions
	errors  []error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// Add 添加数据库配置
// name: 组件名
// dialector: GORM 驱动 (e.g. sqlite.Open(dsn))
// configure: 可选的配置函数
func (b *Builder) Add(name string, dialector gorm.Dialector, configure ...func(*DatabaseOptions)) *Builder {
	for _, c := range b.configs {
		if c.Name == name {
			b.errors = append(b.errors, fmt.Errorf("database '%s' already configured", name))
			return b
		}
	}

	opts := NewDefaultOptions(name, dialector)
	for _, fn := range configure {
		fn(opts)
	}
	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid configuration for '%s': %w", name, err))
		return b
	}

	b.configs = append(b.configs, *opts)
	return b
}

// Build 构建数据库工厂
func (b *Builder) Build(logger logging.Logger) (*DatabaseFactory, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("database configuration errors: %w", errors.Join(b.errors...))
	}

	factory := NewDatabaseFactory(logger)
	for _, opts := range b.configs {
		if err := factory.Register(opts); err != nil {
			return nil, fmt.Errorf("failed to register database '%s': %w", opts.Name, err)
		}
	}
	return factory, nil
}
