package di

import (
	"context"
	"fmt"
	"reflect"
)

// Get 按名称获取组件并断言为 T。
func Get[T any](ctx context.Context, c *Container, name string) (T, error) {
	var zero T
	v, err := c.GetOrCreate(ctx, name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("di: 组件 %q 的类型为 %T，不是 %v", name, v, reflect.TypeFor[T]())
	}
	return t, nil
}

// Resolve 按类型解析唯一的组件。
func Resolve[T any](ctx context.Context, c *Container) (T, error) {
	var zero T
	typ := reflect.TypeFor[T]()
	res, err := c.ResolveDependency(ctx, Query{Type: typ, Required: true})
	if err != nil {
		return zero, err
	}
	if !res.Found {
		return zero, &NotFoundError{Type: typ}
	}
	return res.Value.(T), nil
}

// MustGet 与 Get 相同，失败时 panic。
func MustGet[T any](ctx context.Context, c *Container, name string) T {
	v, err := Get[T](ctx, c, name)
	if err != nil {
		panic(err)
	}
	return v
}
