package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// DatabaseOptions 单个数据库的配置
type DatabaseOptions struct {
	Name      string
	Dialector gorm.Dialector
	Config    *gorm.Config

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// AutoMigrate 打开后自动迁移的模型
	AutoMigrate []any
	// Primary 按类型注入 *gorm.DB 时优先选择
	Primary bool
}

// NewDefaultOptions 默认配置
func NewDefaultOptions(name string, dialector gorm.Dialector) *DatabaseOptions {
	return &DatabaseOptions{
		Name:            name,
		Dialector:       dialector,
		Config:          &gorm.Config{},
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		Primary:         name == DefaultName,
	}
}

// Validate 校验配置
func (o *DatabaseOptions) Validate() error {
	if o.Name == "" {
		return errors.New("name is required")
	}
	if o.Dialector == nil {
		return errors.New("dialector is required")
	}
	if o.MaxOpenConns < 0 || o.MaxIdleConns < 0 {
		return errors.New("connection pool size must not be negative")
	}
	return nil
}

// WithPool 设置连接池
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) func(*DatabaseOptions) {
	return func(o *DatabaseOptions) {
		o.MaxOpenConns = maxOpen
		o.MaxIdleConns = maxIdle
		o.ConnMaxLifetime = lifetime
	}
}

// WithAutoMigrate 设置自动迁移的模型
func WithAutoMigrate(models ...any) func(*DatabaseOptions) {
	return func(o *DatabaseOptions) {
		o.AutoMigrate = append(o.AutoMigrate, models...)
	}
}

// WithPrimary 设为按类型注入时的首选
func WithPrimary() func(*DatabaseOptions) {
	return func(o *DatabaseOptions) {
		o.Primary = true
	}
}
