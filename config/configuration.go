package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"sync"

	"github.com/golobby/cast"
)

// Configuration 分层配置，键使用 "a:b:c" 或 "a.b.c"
type Configuration interface {
	// Get 获取配置值，不存在时返回空字符串
	Get(key string) string
	// GetWithDefault 获取配置值，如果不存在则返回默认值
	GetWithDefault(key, defaultValue string) string
	// Lookup 获取原始值
	Lookup(key string) (any, bool)
	// GetSection 获取配置节
	GetSection(key string) Configuration
	// Bind 绑定配置到结构体
	Bind(key string, target any) error
	// GetAll 获取所有配置的副本
	GetAll() map[string]any
}

// ConfigurationSource 配置源接口
type ConfigurationSource interface {
	Load() (map[string]any, error)
	Name() string
}

// ConfigurationBuilder 配置构建器，后添加的源覆盖先添加的源
type ConfigurationBuilder struct {
	sources []ConfigurationSource
	mu      sync.RWMutex
}

// NewConfigurationBuilder 创建配置构建器
func NewConfigurationBuilder() *ConfigurationBuilder {
	return &ConfigurationBuilder{
		sources: make([]ConfigurationSource, 0),
	}
}

// Add 添加配置源
func (b *ConfigurationBuilder) Add(source ConfigurationSource) *ConfigurationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources = append(b.sources, source)
	return b
}

// AddJsonFile 添加 JSON 文件配置源
func (b *ConfigurationBuilder) AddJsonFile(path string, optional ...bool) *ConfigurationBuilder {
	isOptional := len(optional) > 0 && optional[0]
	return b.Add(&JsonFileSource{Path: path, Optional: isOptional})
}

// AddYamlFile 添加 YAML 文件配置源
func (b *ConfigurationBuilder) AddYamlFile(path string, optional ...bool) *ConfigurationBuilder {
	isOptional := len(optional) > 0 && optional[0]
	return b.Add(&YamlFileSource{Path: path, Optional: isOptional})
}

// AddEnvironmentVariables 添加环境变量配置源
func (b *ConfigurationBuilder) AddEnvironmentVariables(prefix string) *ConfigurationBuilder {
	return b.Add(&EnvironmentVariableSource{Prefix: prefix})
}

// AddInMemory 添加内存配置源
func (b *ConfigurationBuilder) AddInMemory(data map[string]any) *ConfigurationBuilder {
	return b.Add(&InMemorySource{Data: data})
}

// Build 按顺序加载所有配置源
func (b *ConfigurationBuilder) Build() (Configuration, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data := make(map[string]any)
	for _, source := range b.sources {
		loaded, err := source.Load()
		if err != nil {
			return nil, fmt.Errorf("config: 加载配置源 %s 失败: %w", source.Name(), err)
		}
		mergeMaps(data, loaded)
	}

	sources := slices.Clone(b.sources)
	return &configuration{store: NewValueStore(data), sources: sources}, nil
}

// Reloadable 可以重新读取配置源的配置
type Reloadable interface {
	Configuration
	// Reload 重新加载全部配置源，失败时保留旧快照
	Reload() error
	// Version 配置被重新加载的次数
	Version() uint64
}

// configuration 配置实现，读取无锁
type configuration struct {
	store   *ValueStore
	sources []ConfigurationSource
}

// FromMap 用给定数据创建配置
func FromMap(data map[string]any) Configuration {
	cp := make(map[string]any, len(data))
	mergeMaps(cp, data)
	return &configuration{store: NewValueStore(cp)}
}

func (c *configuration) Reload() error {
	data := make(map[string]any)
	for _, source := range c.sources {
		loaded, err := source.Load()
		if err != nil {
			return fmt.Errorf("config: 重新加载配置源 %s 失败: %w", source.Name(), err)
		}
		mergeMaps(data, loaded)
	}
	c.store.Store(data)
	return nil
}

func (c *configuration) Version() uint64 { return c.store.Version() }

func (c *configuration) Get(key string) string {
	value, ok := c.Lookup(key)
	if !ok || value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (c *configuration) GetWithDefault(key, defaultValue string) string {
	if _, ok := c.Lookup(key); !ok {
		return defaultValue
	}
	return c.Get(key)
}

func (c *configuration) Lookup(key string) (any, bool) {
	current := any(c.store.Load())
	if key == "" {
		return current, true
	}
	for _, part := range keySegments.split(key) {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

func (c *configuration) GetSection(key string) Configuration {
	value, _ := c.Lookup(key)
	if m, ok := value.(map[string]any); ok {
		return FromMap(m)
	}
	return FromMap(nil)
}

// Bind 通过 JSON 序列化绑定配置
func (c *configuration) Bind(key string, target any) error {
	data, ok := c.Lookup(key)
	if !ok {
		return fmt.Errorf("config: 键 %s 不存在", key)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("config: 序列化 %s 失败: %w", key, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("config: 绑定 %s 失败: %w", key, err)
	}
	return nil
}

func (c *configuration) GetAll() map[string]any {
	result := make(map[string]any)
	mergeMaps(result, c.store.Load())
	return result
}

// GetAs 读取配置值并转换为 T，字符串值按目标类型解析
func GetAs[T any](cfg Configuration, key string) (T, error) {
	var zero T
	value, ok := cfg.Lookup(key)
	if !ok {
		return zero, fmt.Errorf("config: 键 %s 不存在", key)
	}
	if v, ok := value.(T); ok {
		return v, nil
	}

	converted, err := cast.FromType(fmt.Sprint(value), reflect.TypeFor[T]())
	if err != nil {
		return zero, fmt.Errorf("config: 键 %s 的值 %v 无法转换为 %v: %w", key, value, reflect.TypeFor[T](), err)
	}
	v, ok := converted.(T)
	if !ok {
		return zero, fmt.Errorf("config: 键 %s 的值 %v 无法转换为 %v", key, value, reflect.TypeFor[T]())
	}
	return v, nil
}

// mergeMaps 深度合并，src 覆盖 dst
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			dstMap, ok := dst[k].(map[string]any)
			if !ok {
				dstMap = make(map[string]any)
				dst[k] = dstMap
			}
			mergeMaps(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
}
