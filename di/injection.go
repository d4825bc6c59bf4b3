package di

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gocrud/container/logging"
)

// dependency 注入点上的一个依赖，shortcuts 按请求组件缓存上次解析到的组件名。
// 同类型的多个组件共享元数据，所以缓存不能只有一份。
type dependency struct {
	typ       reflect.Type
	name      string
	required  bool
	shortcuts sync.Map // component -> resolved name
}

func (d *dependency) shortcut(component string) (string, bool) {
	v, ok := d.shortcuts.Load(component)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// injectionPoint 字段或方法注入点。
type injectionPoint struct {
	member string
	field  []int  // 字段注入的索引路径
	method string // 方法注入的方法名
	args   []*dependency
}

// injectionMetadata 某个类型的全部注入点，嵌入结构体的注入点在前。
type injectionMetadata struct {
	typ    reflect.Type
	points []*injectionPoint
}

// Injector 内置的注入钩子：字段与方法注入、构造函数候选选择。
type Injector struct {
	container *Container
	logger    logging.Logger

	metadata   Memo[reflect.Type, *injectionMetadata]
	candidates Memo[string, []Constructor]
	types      sync.Map // name -> reflect.Type
}

func newInjector(c *Container) *Injector {
	return &Injector{container: c, logger: c.logger}
}

func (i *Injector) Order() int { return LowestPrecedence - 2 }

func (i *Injector) PriorityOrdered() {}

// MergedDescriptorReady 预先计算注入元数据。
func (i *Injector) MergedDescriptorReady(_ context.Context, d *Descriptor, typ reflect.Type, name string) error {
	if typ == nil {
		return nil
	}
	i.types.Store(name, typ)
	_, err := i.metadataFor(typ)
	return err
}

// MutateProperties 执行字段与方法注入，属性值原样传递。
func (i *Injector) MutateProperties(ctx context.Context, props []PropertyValue, instance any, name string) ([]PropertyValue, error) {
	meta, err := i.metadataFor(reflect.TypeOf(instance))
	if err != nil {
		return nil, err
	}
	if err := i.inject(ctx, meta, instance, name); err != nil {
		return nil, err
	}
	return props, nil
}

// CandidateConstructors 按注入标记选择候选构造函数。
func (i *Injector) CandidateConstructors(_ context.Context, typ reflect.Type, name string, declared []Constructor) ([]Constructor, error) {
	if len(declared) == 0 {
		return nil, nil
	}
	if name == "" {
		return selectCandidates(name, declared)
	}
	return i.candidates.Get(name, func() ([]Constructor, error) {
		return selectCandidates(name, declared)
	})
}

// ResetDescriptor 清除该名称对应的缓存。
func (i *Injector) ResetDescriptor(name string) {
	i.candidates.Delete(name)
	if typ, ok := i.types.LoadAndDelete(name); ok {
		i.metadata.Delete(typ.(reflect.Type))
	}
}

func selectCandidates(name string, declared []Constructor) ([]Constructor, error) {
	var required, optional []Constructor
	var zero *Constructor
	for idx := range declared {
		ctor := declared[idx]
		fnType := reflect.TypeOf(ctor.Fn)
		if fnType == nil || fnType.Kind() != reflect.Func {
			return nil, configErrorf(name, "构造函数必须是函数，得到 %T", ctor.Fn)
		}
		switch ctor.Inject {
		case MarkerRequired:
			required = append(required, ctor)
		case MarkerOptional:
			optional = append(optional, ctor)
		}
		if fnType.NumIn() == 0 && zero == nil {
			zero = &declared[idx]
		}
	}

	switch {
	case len(required) > 1:
		return nil, configErrorf(name, "%d 个构造函数同时标记为必需注入", len(required))
	case len(required) == 1 && len(optional) > 0:
		return nil, configErrorf(name, "必需注入的构造函数不能与可选注入的构造函数共存")
	case len(required) == 1:
		return required, nil
	case len(optional) > 0:
		if zero != nil && zero.Inject == MarkerNone {
			optional = append(optional, *zero)
		}
		return optional, nil
	}
	return nil, nil
}

func (i *Injector) metadataFor(typ reflect.Type) (*injectionMetadata, error) {
	return i.metadata.Get(typ, func() (*injectionMetadata, error) {
		return i.buildMetadata(typ)
	})
}

func (i *Injector) buildMetadata(typ reflect.Type) (*injectionMetadata, error) {
	meta := &injectionMetadata{typ: typ}

	structType := typ
	if structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}
	if structType.Kind() == reflect.Struct {
		i.collectFields(structType, nil, meta)
	}

	if typ.Implements(reflect.TypeFor[MethodInjectable]()) {
		points, err := methodPoints(typ)
		if err != nil {
			return nil, err
		}
		meta.points = append(meta.points, points...)
	}
	return meta, nil
}

// collectFields 先收集嵌入结构体的注入点，再收集自身字段。
func (i *Injector) collectFields(typ reflect.Type, prefix []int, meta *injectionMetadata) {
	for idx := 0; idx < typ.NumField(); idx++ {
		field := typ.Field(idx)
		if _, tagged := field.Tag.Lookup("di"); tagged {
			continue
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			i.collectFields(field.Type, appendIndex(prefix, idx), meta)
		}
	}

	for idx := 0; idx < typ.NumField(); idx++ {
		field := typ.Field(idx)
		tagValue, tagged := field.Tag.Lookup("di")
		if !tagged {
			continue
		}
		if !field.IsExported() {
			i.logger.Warn("跳过未导出的注入字段",
				logging.Field{Key: "type", Value: typ.String()},
				logging.Field{Key: "field", Value: field.Name})
			continue
		}

		name, optional := parseTag(tagValue)
		meta.points = append(meta.points, &injectionPoint{
			member: field.Name,
			field:  appendIndex(prefix, idx),
			args:   []*dependency{{typ: field.Type, name: name, required: !optional}},
		})
	}
}

// parseTag 解析 tag: "name,optional"，"?" 表示按类型可选注入
func parseTag(tag string) (name string, optional bool) {
	parts := strings.Split(tag, ",")
	name = strings.TrimSpace(parts[0])
	if name == "?" || name == "optional" {
		return "", true
	}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "optional" || part == "?" {
			optional = true
		}
	}
	return name, optional
}

func methodPoints(typ reflect.Type) ([]*injectionPoint, error) {
	var zero reflect.Value
	if typ.Kind() == reflect.Ptr {
		zero = reflect.New(typ.Elem())
	} else {
		zero = reflect.Zero(typ)
	}
	names := zero.Interface().(MethodInjectable).InjectionMethods()

	points := make([]*injectionPoint, 0, len(names))
	for _, raw := range names {
		name, optional := strings.CutSuffix(raw, "?")
		m, ok := typ.MethodByName(name)
		if !ok {
			return nil, configErrorf("", "类型 %v 没有注入方法 %s", typ, name)
		}
		p := &injectionPoint{member: name, method: name}
		// 第 0 个参数是接收者
		for a := 1; a < m.Type.NumIn(); a++ {
			p.args = append(p.args, &dependency{typ: m.Type.In(a), required: !optional})
		}
		points = append(points, p)
	}
	return points, nil
}

func appendIndex(prefix []int, idx int) []int {
	out := make([]int, len(prefix), len(prefix)+1)
	copy(out, prefix)
	return append(out, idx)
}

func (i *Injector) inject(ctx context.Context, meta *injectionMetadata, instance any, name string) error {
	if len(meta.points) == 0 {
		return nil
	}
	target := reflect.ValueOf(instance)

	for _, p := range meta.points {
		if p.field != nil {
			if err := i.injectField(ctx, p, target, name); err != nil {
				return err
			}
			continue
		}
		if err := i.injectMethod(ctx, p, target, name); err != nil {
			return err
		}
	}
	return nil
}

func (i *Injector) injectField(ctx context.Context, p *injectionPoint, target reflect.Value, name string) error {
	if target.Kind() != reflect.Ptr || target.IsNil() {
		return fmt.Errorf("di: 字段注入需要非 nil 的结构体指针，得到 %v", target.Type())
	}
	dep := p.args[0]
	v, ok, err := i.resolve(ctx, dep, name, p.member)
	if err != nil || !ok {
		return err
	}
	field := target.Elem().FieldByIndex(p.field)
	field.Set(v)
	return nil
}

func (i *Injector) injectMethod(ctx context.Context, p *injectionPoint, target reflect.Value, name string) error {
	args := make([]reflect.Value, len(p.args))
	for idx, dep := range p.args {
		if dep.typ == contextType {
			args[idx] = reflect.ValueOf(ctx)
			continue
		}
		v, ok, err := i.resolve(ctx, dep, name, fmt.Sprintf("%s[%d]", p.member, idx))
		if err != nil {
			return err
		}
		// 可选方法的任一参数无法解析时跳过整个方法
		if !ok {
			return nil
		}
		args[idx] = v
	}

	out := target.MethodByName(p.method).Call(args)
	if len(out) > 0 {
		last := out[len(out)-1]
		if last.Type().Implements(errorType) && !last.IsNil() {
			return fmt.Errorf("di: 注入方法 %s 失败: %w", p.method, last.Interface().(error))
		}
	}
	return nil
}

// resolve 优先使用 shortcut 按名称查找，失败时回退到完整解析。
func (i *Injector) resolve(ctx context.Context, dep *dependency, component, member string) (reflect.Value, bool, error) {
	c := i.container

	if sc, ok := dep.shortcut(component); ok {
		res, err := c.resolveByName(ctx, Query{Type: dep.typ, Name: sc, Component: component, Member: member})
		if err != nil {
			return reflect.Value{}, false, err
		}
		if res.Found {
			v, err := convertValue(res.Value, dep.typ)
			return v, err == nil, err
		}
		dep.shortcuts.Delete(component)
	}

	res, err := c.ResolveDependency(ctx, Query{
		Type:      dep.typ,
		Name:      dep.name,
		Required:  dep.required,
		Component: component,
		Member:    member,
	})
	if err != nil {
		return reflect.Value{}, false, err
	}
	if !res.Found {
		if dep.required {
			return reflect.Value{}, false, &UnsatisfiedDependencyError{Component: component, Member: member, Type: dep.typ}
		}
		return reflect.Value{}, false, nil
	}
	if component != "" && res.Name != "" && res.Name != component {
		dep.shortcuts.Store(component, res.Name)
	}

	v, err := convertValue(res.Value, dep.typ)
	if err != nil {
		return reflect.Value{}, false, err
	}
	return v, true, nil
}
