package di

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"unicode"
	"unicode/utf8"
)

// Query 依赖查询。Name 非空时按名称解析，否则按类型解析。
// Component 为发起查询的组件，Member 为注入点描述，用于裁决和错误信息。
type Query struct {
	Type      reflect.Type
	Name      string
	Required  bool
	Component string
	Member    string
}

// Resolution 查询结果，Found 为 false 表示没有匹配。
type Resolution struct {
	Value any
	Name  string
	Found bool
}

// DependencyResolver 将依赖查询解析为具体组件。
type DependencyResolver interface {
	ResolveDependency(ctx context.Context, q Query) (Resolution, error)
}

// ResolveDependency 按名称、可解析依赖、类型的顺序解析。
// 切片类型收集所有匹配元素类型的组件。
func (c *Container) ResolveDependency(ctx context.Context, q Query) (Resolution, error) {
	if q.Type == nil && q.Name == "" {
		return Resolution{}, configErrorf(q.Component, "查询缺少类型和名称")
	}

	if q.Type != nil {
		if v, ok := c.resolvable(q.Type); ok {
			return Resolution{Value: v, Found: true}, nil
		}
	}

	if q.Name != "" {
		return c.resolveByName(ctx, q)
	}

	if q.Type.Kind() == reflect.Slice && q.Type.Elem().Kind() != reflect.Uint8 {
		if res, err := c.resolveSlice(ctx, q); err != nil || res.Found {
			return res, err
		}
	}

	names := c.candidateNames(q.Type, q.Component)
	if len(names) == 0 {
		return Resolution{}, nil
	}

	name, err := c.determineCandidate(q, names)
	if err != nil {
		return Resolution{}, err
	}
	return c.resolveByName(ctx, Query{
		Type:      q.Type,
		Name:      name,
		Required:  q.Required,
		Component: q.Component,
		Member:    q.Member,
	})
}

func (c *Container) resolveByName(ctx context.Context, q Query) (Resolution, error) {
	if !c.ContainsComponent(q.Name) {
		return Resolution{}, nil
	}

	v, err := c.GetOrCreate(ctx, q.Name)
	if err != nil {
		return Resolution{}, err
	}
	if q.Type != nil && !reflect.TypeOf(v).AssignableTo(q.Type) {
		return Resolution{}, &UnsatisfiedDependencyError{
			Component: q.Component,
			Member:    q.Member,
			Type:      q.Type,
			Err:       fmt.Errorf("组件 %q 的类型为 %T", q.Name, v),
		}
	}
	c.registry.registerDependent(q.Name, q.Component)
	return Resolution{Value: v, Name: q.Name, Found: true}, nil
}

func (c *Container) resolveSlice(ctx context.Context, q Query) (Resolution, error) {
	elem := q.Type.Elem()
	names := c.candidateNames(elem, q.Component)
	if len(names) == 0 {
		return Resolution{}, nil
	}

	out := reflect.MakeSlice(q.Type, 0, len(names))
	for _, name := range names {
		res, err := c.resolveByName(ctx, Query{Type: elem, Name: name, Component: q.Component, Member: q.Member})
		if err != nil {
			return Resolution{}, err
		}
		if res.Found {
			out = reflect.Append(out, reflect.ValueOf(res.Value))
		}
	}
	return Resolution{Value: out.Interface(), Found: out.Len() > 0}, nil
}

// determineCandidate 多个候选时依次按 primary、成员名裁决。
func (c *Container) determineCandidate(q Query, names []string) (string, error) {
	if len(names) == 1 {
		return names[0], nil
	}

	var primary []string
	for _, name := range names {
		if d, err := c.store.MergedDescriptor(name); err == nil && d.Primary {
			primary = append(primary, name)
		}
	}
	if len(primary) == 1 {
		return primary[0], nil
	}
	if len(primary) > 1 {
		return "", &AmbiguousError{Type: q.Type, Candidates: primary}
	}

	if q.Member != "" {
		hint := lowerFirst(q.Member)
		for _, name := range names {
			if name == q.Member || name == hint {
				return name, nil
			}
		}
	}
	return "", &AmbiguousError{Type: q.Type, Candidates: names}
}

// candidateNames 按注册顺序返回类型匹配的组件名，排除 self。
func (c *Container) candidateNames(typ reflect.Type, self string) []string {
	var out []string
	for _, name := range c.componentNames() {
		if name == self {
			continue
		}
		if t := c.TypeOf(name); t != nil && t.AssignableTo(typ) {
			out = append(out, name)
		}
	}
	return out
}

// componentNames 描述名称与手动注册的单例名称，按注册顺序去重。
func (c *Container) componentNames() []string {
	names := c.store.Names()
	for _, name := range c.registry.finishedNames() {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

// NamesForType 返回类型匹配的所有组件名。
func (c *Container) NamesForType(typ reflect.Type) []string {
	return c.candidateNames(typ, "")
}

// RegisterResolvable 注册一个不作为组件管理、但可按类型注入的值。
func (c *Container) RegisterResolvable(typ reflect.Type, value any) {
	c.resMu.Lock()
	defer c.resMu.Unlock()
	c.resolvables[typ] = value
}

func (c *Container) resolvable(typ reflect.Type) (any, bool) {
	c.resMu.RLock()
	defer c.resMu.RUnlock()
	v, ok := c.resolvables[typ]
	return v, ok
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
