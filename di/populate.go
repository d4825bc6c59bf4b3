package di

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/gocrud/container/logging"
	"github.com/golobby/cast"
)

var durationType = reflect.TypeFor[time.Duration]()

// populate 填充依赖与声明的属性。
func (c *Container) populate(ctx context.Context, d *Descriptor, instance any) error {
	proceed, err := c.Pipeline().AfterInstantiation(ctx, instance, d.Name)
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}

	if d.Autowire == AutowireByName || d.Autowire == AutowireByType {
		if err := c.autowireFields(ctx, d, instance); err != nil {
			return err
		}
	}

	props := append([]PropertyValue{}, d.Properties...)
	props, err = c.Pipeline().MutateProperties(ctx, props, instance, d.Name)
	if err != nil {
		return err
	}
	if props == nil {
		return nil
	}
	return c.applyProperties(ctx, d, instance, props)
}

// autowireFields 为未设置的导出指针或接口字段按名称或类型注入。
// 带 di 标签的字段与已声明的属性不参与。
func (c *Container) autowireFields(ctx context.Context, d *Descriptor, instance any) error {
	target := reflect.ValueOf(instance)
	if target.Kind() != reflect.Ptr || target.Elem().Kind() != reflect.Struct {
		return nil
	}
	elem := target.Elem()
	typ := elem.Type()

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}
		if _, tagged := field.Tag.Lookup("di"); tagged {
			continue
		}
		if k := field.Type.Kind(); k != reflect.Ptr && k != reflect.Interface {
			continue
		}
		if !elem.Field(i).IsZero() {
			continue
		}
		if _, declared := d.Property(field.Name); declared {
			continue
		}
		if _, declared := d.Property(lowerFirst(field.Name)); declared {
			continue
		}

		q := Query{Type: field.Type, Component: d.Name, Member: field.Name}
		if d.Autowire == AutowireByName {
			q.Name = lowerFirst(field.Name)
		}
		res, err := c.ResolveDependency(ctx, q)
		if err != nil {
			return err
		}
		if !res.Found {
			continue
		}
		v, err := convertValue(res.Value, field.Type)
		if err != nil {
			return err
		}
		elem.Field(i).Set(v)
		c.logger.Debug("自动装配字段",
			logging.Component(d.Name),
			logging.Field{Key: "field", Value: field.Name},
			logging.Field{Key: "dependency", Value: res.Name})
	}
	return nil
}

func (c *Container) applyProperties(ctx context.Context, d *Descriptor, instance any, props []PropertyValue) error {
	for _, p := range props {
		value := p.Value
		if p.Ref != "" {
			v, err := c.GetOrCreate(ctx, p.Ref)
			if err != nil {
				return err
			}
			c.registry.registerDependent(p.Ref, d.Name)
			value = v
		}
		if err := setProperty(instance, p.Name, value); err != nil {
			return fmt.Errorf("di: 属性 %s: %w", p.Name, err)
		}
	}
	return nil
}

// setProperty 优先调用 Set<Name> 方法，其次设置导出字段。
func setProperty(instance any, name string, value any) error {
	target := reflect.ValueOf(instance)
	prop := upperFirst(name)

	if m := target.MethodByName("Set" + prop); m.IsValid() && m.Type().NumIn() == 1 {
		arg, err := convertValue(value, m.Type().In(0))
		if err != nil {
			return err
		}
		out := m.Call([]reflect.Value{arg})
		if len(out) > 0 {
			last := out[len(out)-1]
			if last.Type().Implements(errorType) && !last.IsNil() {
				return last.Interface().(error)
			}
		}
		return nil
	}

	if target.Kind() == reflect.Ptr && target.Elem().Kind() == reflect.Struct {
		field := target.Elem().FieldByName(prop)
		if field.IsValid() && field.CanSet() {
			arg, err := convertValue(value, field.Type())
			if err != nil {
				return err
			}
			field.Set(arg)
			return nil
		}
	}
	return fmt.Errorf("类型 %v 没有可写属性 %q", target.Type(), name)
}

// convertValue 将值转换为目标类型，字符串通过 cast 解析。
func convertValue(value any, typ reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(typ), nil
	}

	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(typ) {
		return v, nil
	}

	if s, ok := value.(string); ok {
		if typ == durationType {
			d, err := time.ParseDuration(s)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("无法将 %q 转换为 %v: %w", s, typ, err)
			}
			return reflect.ValueOf(d), nil
		}
		out, err := cast.FromType(s, typ)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("无法将 %q 转换为 %v: %w", s, typ, err)
		}
		cv := reflect.ValueOf(out)
		if cv.Type().ConvertibleTo(typ) {
			return cv.Convert(typ), nil
		}
		return reflect.Value{}, fmt.Errorf("无法将 %q 转换为 %v", s, typ)
	}

	// 数字直接 Convert 为字符串会得到字符
	if typ.Kind() == reflect.String && v.Kind() != reflect.String {
		return reflect.ValueOf(fmt.Sprint(value)).Convert(typ), nil
	}
	if v.Type().ConvertibleTo(typ) {
		return v.Convert(typ), nil
	}
	return reflect.Value{}, fmt.Errorf("无法将 %T 转换为 %v", value, typ)
}
