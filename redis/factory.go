package redis

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gocrud/container/logging"
	"github.com/redis/go-redis/v9"
)

// DefaultName 默认客户端名
const DefaultName = "default"

// RedisClientFactory 按名称创建并持有客户端
type RedisClientFactory struct {
	mu      sync.Mutex
	configs map[string]RedisClientOptions
	clients map[string]*redis.Client
	logger  logging.Logger
}

// NewRedisClientFactory 创建工厂
func NewRedisClientFactory(logger logging.Logger) *RedisClientFactory {
	if logger == nil {
		logger = logging.Discard()
	}
	return &RedisClientFactory{
		configs: make(map[string]RedisClientOptions),
		clients: make(map[string]*redis.Client),
		logger:  logger.WithCategory("redis"),
	}
}

// Register 登记配置
func (f *RedisClientFactory) Register(opts RedisClientOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.configs[opts.Name]; exists {
		return fmt.Errorf("redis client '%s' already registered", opts.Name)
	}
	f.configs[opts.Name] = opts
	return nil
}

// Names 已登记的客户端名，已排序
func (f *RedisClientFactory) Names() []string {
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
func (f *RedisClientFactory) Options(name string) (RedisClientOptions, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	opts, ok := f.configs[name]
	return opts, ok
}

// Client 获取客户端，同名只创建一次。连接在第一次执行命令时建立。
func (f *RedisClientFactory) Client(name string) (*redis.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[name]; ok {
		return c, nil
	}
	opts, ok := f.configs[name]
	if !ok {
		return nil, fmt.Errorf("redis client '%s' not registered", name)
	}

	client := redis.NewClient(opts.clientOptions())
	f.clients[name] = client
	f.logger.Info("redis client created",
		logging.Field{Key: "name", Value: name},
		logging.Field{Key: "addr", Value: opts.Addr},
		logging.Field{Key: "db", Value: opts.DB})
	return client, nil
}

// Close 关闭所有客户端
func (f *RedisClientFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, c := range f.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis client '%s': %w", name, err))
		}
	}
	clear(f.clients)
	return errors.Join(errs...)
}
