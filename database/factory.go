package database

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gocrud/container/logging"
	"gorm.io/gorm"
)

// DefaultName 默认数据库名
const DefaultName = "default"

// DatabaseFactory 按名称打开并持有数据库连接
type DatabaseFactory struct {
	mu      sync.Mutex
	configs map[string]DatabaseOptions
	opened  map[string]*gorm.DB
	logger  logging.Logger
}

// NewDatabaseFactory 创建工厂
func NewDatabaseFactory(logger logging.Logger) *DatabaseFactory {
	if logger == nil {
		logger = logging.Discard()
	}
	return &DatabaseFactory{
		configs: make(map[string]DatabaseOptions),
		opened:  make(map[string]*gorm.DB),
		logger:  logger.WithCategory("database"),
	}
}

// Register 登记配置，连接在第一次 Open 时建立
func (f *DatabaseFactory) Register(opts DatabaseOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.configs[opts.Name]; exists {
		return fmt.Errorf("database '%s' already registered", opts.Name)
	}
	f.configs[opts.Name] = opts
	return nil
}

// Names 已登记的数据库名，已排序
func (f *DatabaseFactory) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.configs))
	for name := range f.configs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Options 已登记的配置
func (f *DatabaseFactory) Options(name string) (DatabaseOptions, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	opts, ok := f.configs[name]
	return opts, ok
}

// Open 打开数据库，同名只打开一次
func (f *DatabaseFactory) Open(name string) (*gorm.DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if db, ok := f.opened[name]; ok {
		return db, nil
	}
	opts, ok := f.configs[name]
	if !ok {
		return nil, fmt.Errorf("database '%s' not registered", name)
	}

	db, err := gorm.Open(opts.Dialector, opts.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database '%s': %w", name, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB for '%s': %w", name, err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if len(opts.AutoMigrate) > 0 {
		if err := db.AutoMigrate(opts.AutoMigrate...); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to migrate database '%s': %w", name, err)
		}
	}

	f.opened[name] = db
	f.logger.Info("Database opened",
		logging.Field{Key: "name", Value: name},
		logging.Field{Key: "dialector", Value: opts.Dialector.Name()})
	return db, nil
}

// Close 关闭所有已打开的连接
func (f *DatabaseFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, db := range f.opened {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to close database '%s': %w", name, err))
			continue
		}
		f.logger.Info("Database closed", logging.Field{Key: "name", Value: name})
	}
	clear(f.opened)
	return errors.Join(errs...)
}
