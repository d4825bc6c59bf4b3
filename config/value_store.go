package config

import (
	"strings"
	"sync"
	"sync/atomic"
)

// ValueStore 保存配置快照，读取无锁，每次替换递增版本号
type ValueStore struct {
	snapshot atomic.Pointer[map[string]any]
	version  atomic.Uint64
}

// NewValueStore 用初始数据创建存储
func NewValueStore(data map[string]any) *ValueStore {
	s := &ValueStore{}
	if data == nil {
		data = make(map[string]any)
	}
	s.snapshot.Store(&data)
	return s
}

// Load 当前快照，调用方不得修改
func (s *ValueStore) Load() map[string]any {
	return *s.snapshot.Load()
}

// Store 替换快照并返回新版本号
func (s *ValueStore) Store(data map[string]any) uint64 {
	if data == nil {
		data = make(map[string]any)
	}
	s.snapshot.Store(&data)
	return s.version.Add(1)
}

// Version 快照被替换的次数
func (s *ValueStore) Version() uint64 { return s.version.Load() }

// keySegments 解析 "a:b.c" 形式的键，忽略空段，结果按键缓存
var keySegments = newSegmentCache()

type segmentCache struct {
	m sync.Map
}

func newSegmentCache() *segmentCache { return &segmentCache{} }

func (c *segmentCache) split(key string) []string {
	if v, ok := c.m.Load(key); ok {
		return v.([]string)
	}
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == ':' || r == '.' })
	c.m.Store(key, parts)
	return parts
}
