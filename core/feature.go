package core

import (
	"reflect"
	"sync"
)

// FeatureCollection 按类型存放构建期特性，例如定时任务注册器、Web 主机
type FeatureCollection struct {
	mu       sync.RWMutex
	features map[reflect.Type]any
}

// Set 以 feature 的动态类型登记，同类型后者覆盖前者
func (fc *FeatureCollection) Set(feature any) {
	fc.set(reflect.TypeOf(feature), feature)
}

// Get 按类型获取
func (fc *FeatureCollection) Get(typ reflect.Type) (any, bool) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	v, ok := fc.features[typ]
	return v, ok
}

// Len 已登记的特性数
func (fc *FeatureCollection) Len() int {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return len(fc.features)
}

func (fc *FeatureCollection) set(typ reflect.Type, feature any) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.features == nil {
		fc.features = make(map[reflect.Type]any)
	}
	fc.features[typ] = feature
}

// SetFeature 以类型 T 登记特性，T 可以是接口
func SetFeature[T any](rt *Runtime, feature T) {
	rt.Features.set(reflect.TypeFor[T](), feature)
}

// GetFeature 按类型 T 获取特性，不存在时返回零值
func GetFeature[T any](rt *Runtime) T {
	if v, ok := rt.Features.Get(reflect.TypeFor[T]()); ok {
		return v.(T)
	}
	var zero T
	return zero
}
