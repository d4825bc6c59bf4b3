package di

import (
	"reflect"
	"slices"
	"sync"
)

// DescriptorStore 按名称提供合并后的描述。
// 同一次创建期间返回的描述必须保持不变。
type DescriptorStore interface {
	MergedDescriptor(name string) (*Descriptor, error)
	HasDescriptor(name string) bool
	Names() []string
}

// Resettable 描述被重置时收到通知。
type Resettable interface {
	ResetDescriptor(name string)
}

// Store 内存中的描述存储。
type Store struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	names       []string
	merged      Memo[string, *Descriptor]
}

// NewStore 创建一个空的描述存储。
func NewStore() *Store {
	return &Store{descriptors: make(map[string]*Descriptor)}
}

// Add 注册描述。名称必须唯一。
func (s *Store) Add(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return configErrorf("", "描述必须有名称")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.descriptors[d.Name]; exists {
		return configErrorf(d.Name, "已注册")
	}
	s.descriptors[d.Name] = d.clone()
	s.names = append(s.names, d.Name)
	// 子描述的合并结果依赖父描述，整体失效
	s.merged.Reset()
	return nil
}

// Register 按类型和选项注册描述。
func (s *Store) Register(name string, typ reflect.Type, opts ...Option) error {
	d := &Descriptor{Name: name, Type: typ}
	for _, opt := range opts {
		opt(d)
	}
	return s.Add(d)
}

// Remove 删除描述。
func (s *Store) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.descriptors[name]; !ok {
		return
	}
	delete(s.descriptors, name)
	s.names = slices.DeleteFunc(s.names, func(n string) bool { return n == name })
	s.merged.Reset()
}

// Descriptor 返回未合并的描述副本。
func (s *Store) Descriptor(name string) (*Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descriptors[name]
	if !ok {
		return nil, false
	}
	return d.clone(), true
}

// HasDescriptor 判断名称是否已注册。
func (s *Store) HasDescriptor(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.descriptors[name]
	return ok
}

// Names 按注册顺序返回所有名称。
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.names)
}

// MergedDescriptor 返回沿父链合并后的描述副本，每个名称只合并一次。
func (s *Store) MergedDescriptor(name string) (*Descriptor, error) {
	d, err := s.merged.Get(name, func() (*Descriptor, error) {
		return s.merge(name)
	})
	if err != nil {
		return nil, err
	}
	return d.clone(), nil
}

// ResetDescriptor 使合并缓存失效。
func (s *Store) ResetDescriptor(name string) {
	s.merged.Reset()
}

func (s *Store) merge(name string) (*Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.descriptors[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}

	lineage := []*Descriptor{d}
	seen := map[string]bool{name: true}
	for cur := d; cur.Parent != ""; {
		if seen[cur.Parent] {
			return nil, configErrorf(name, "父描述 %q 形成循环", cur.Parent)
		}
		p, ok := s.descriptors[cur.Parent]
		if !ok {
			return nil, configErrorf(name, "父描述 %q 不存在", cur.Parent)
		}
		seen[cur.Parent] = true
		lineage = append(lineage, p)
		cur = p
	}

	result := lineage[len(lineage)-1].clone()
	for i := len(lineage) - 2; i >= 0; i-- {
		result = mergeDescriptor(result, lineage[i])
	}
	return result, nil
}

// Register 注册类型为 T 的组件。结构体类型按指针注册。
func Register[T any](s *Store, name string, opts ...Option) error {
	typ := reflect.TypeFor[T]()
	if typ.Kind() == reflect.Struct {
		typ = reflect.PointerTo(typ)
	}
	return s.Register(name, typ, opts...)
}
