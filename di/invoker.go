package di

import (
	"context"
	"fmt"
	"reflect"
)

var (
	errorType   = reflect.TypeFor[error]()
	contextType = reflect.TypeFor[context.Context]()
)

// invoke 调用构造函数或工厂
// 检查末尾的 error 返回值和 nil 实例
func invoke(fn reflect.Value, args []reflect.Value, what string) (any, error) {
	var results []reflect.Value
	if fn.Type().IsVariadic() {
		results = fn.CallSlice(args)
	} else {
		results = fn.Call(args)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("di: %s 没有返回值", what)
	}

	// 检查 error
	if len(results) > 1 {
		last := results[len(results)-1]
		if last.Type().Implements(errorType) && !last.IsNil() {
			return nil, fmt.Errorf("di: %s 失败: %w", what, last.Interface().(error))
		}
	}

	// 检查 nil
	first := results[0]
	switch first.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if first.IsNil() {
			return nil, fmt.Errorf("di: %s 返回了 nil 实例", what)
		}
	}

	return first.Interface(), nil
}

// callLifecycle 调用 func() 或 func(ctx) 形式的方法，可选返回 error
func callLifecycle(ctx context.Context, m reflect.Value) error {
	t := m.Type()
	var args []reflect.Value
	switch {
	case t.NumIn() == 0:
	case t.NumIn() == 1 && t.In(0) == contextType:
		args = []reflect.Value{reflect.ValueOf(ctx)}
	default:
		return fmt.Errorf("di: 不支持的生命周期方法签名 %v", t)
	}

	out := m.Call(args)
	if len(out) > 0 {
		last := out[len(out)-1]
		if last.Type().Implements(errorType) && !last.IsNil() {
			return last.Interface().(error)
		}
	}
	return nil
}
