package etcd

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gocrud/container/logging"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultName 默认客户端名
const DefaultName = "default"

// EtcdClientFactory etcd 客户端工厂，客户端在第一次获取时创建
type EtcdClientFactory struct {
	mu      sync.Mutex
	configs map[string]EtcdClientOptions
	clients map[string]*clientv3.Client
	logger  logging.Logger
	newFn   func(clientv3.Config) (*clientv3.Client, error)
}

// NewEtcdClientFactory 创建客户端工厂
func NewEtcdClientFactory(logger logging.Logger) *EtcdClientFactory {
	if logger == nil {
		logger = logging.Discard()
	}
	return &EtcdClientFactory{
		configs: make(map[string]EtcdClientOptions),
		clients: make(map[string]*clientv3.Client),
		logger:  logger.WithCategory("etcd"),
		newFn:   clientv3.New,
	}
}

// Register 登记 etcd 客户端配置
func (f *EtcdClientFactory) Register(opts EtcdClientOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.configs[opts.Name]; exists {
		return fmt.Errorf("etcd client '%s' already registered", opts.Name)
	}
	f.configs[opts.Name] = opts
	return nil
}

// Names 已登记的客户端名，已排序
func (f *EtcdClientFactory) Names() []string {
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
func (f *EtcdClientFactory) Options(name string) (EtcdClientOptions, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	opts, ok := f.configs[name]
	return opts, ok
}

// Client 获取客户端，同名只创建一次
func (f *EtcdClientFactory) Client(name string) (*clientv3.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[name]; ok {
		return c, nil
	}
	opts, ok := f.configs[name]
	if !ok {
		return nil, fmt.Errorf("etcd client '%s' not registered", name)
	}

	client, err := f.newFn(opts.config())
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client '%s': %w", name, err)
	}
	f.clients[name] = client
	f.logger.Info("etcd client created",
		logging.Field{Key: "name", Value: name},
		logging.Field{Key: "endpoints", Value: opts.Endpoints})
	return client, nil
}

// Close 关闭所有 etcd 客户端
func (f *EtcdClientFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, client := range f.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close etcd client '%s': %w", name, err))
		}
	}
	clear(f.clients)
	return errors.Join(errs...)
}
