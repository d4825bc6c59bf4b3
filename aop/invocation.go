package aop

import (
	"context"
	"fmt"
	"reflect"
)

var (
	errorType   = reflect.TypeFor[error]()
	contextType = reflect.TypeFor[context.Context]()
)

// Interceptor 方法拦截器
type Interceptor interface {
	Invoke(inv *Invocation) ([]any, error)
}

// InterceptorFunc 函数形式的拦截器
type InterceptorFunc func(inv *Invocation) ([]any, error)

func (f InterceptorFunc) Invoke(inv *Invocation) ([]any, error) { return f(inv) }

// Invocation 一次被拦截的方法调用
type Invocation struct {
	// Name 组件名
	Name   string
	Target any
	Method reflect.Method
	Args   []any

	chain []Interceptor
	index int
}

// Proceed 调用下一个拦截器，链尾调用目标方法。
// 返回值包含目标方法的全部返回值，error 为其中最后一个非 nil 的 error。
func (inv *Invocation) Proceed() ([]any, error) {
	if inv.index < len(inv.chain) {
		next := inv.chain[inv.index]
		inv.index++
		return next.Invoke(inv)
	}
	return inv.invokeTarget()
}

// Context 返回第一个 context.Context 参数
func (inv *Invocation) Context() (context.Context, bool) {
	for _, a := range inv.Args {
		if ctx, ok := a.(context.Context); ok {
			return ctx, true
		}
	}
	return nil, false
}

// SetContext 替换第一个 context.Context 参数
func (inv *Invocation) SetContext(ctx context.Context) bool {
	for i, a := range inv.Args {
		if _, ok := a.(context.Context); ok {
			inv.Args[i] = ctx
			return true
		}
	}
	return false
}

// ReturnsError 目标方法最后一个返回值是否为 error
func (inv *Invocation) ReturnsError() bool {
	mt := inv.Method.Type
	return mt.NumOut() > 0 && mt.Out(mt.NumOut()-1) == errorType
}

// WithError 用 err 替换结果中的 error 返回值，其余返回值置零
func (inv *Invocation) WithError(err error) []any {
	mt := inv.Method.Type
	out := make([]any, mt.NumOut())
	for i := range out {
		out[i] = reflect.Zero(mt.Out(i)).Interface()
	}
	if inv.ReturnsError() {
		out[len(out)-1] = err
	}
	return out
}

func (inv *Invocation) invokeTarget() ([]any, error) {
	mt := inv.Method.Type
	// 第 0 个参数是接收者
	want := mt.NumIn() - 1
	if mt.IsVariadic() {
		if len(inv.Args) < want-1 {
			return nil, fmt.Errorf("aop: %s.%s 需要至少 %d 个参数，得到 %d 个", inv.Name, inv.Method.Name, want-1, len(inv.Args))
		}
	} else if len(inv.Args) != want {
		return nil, fmt.Errorf("aop: %s.%s 需要 %d 个参数，得到 %d 个", inv.Name, inv.Method.Name, want, len(inv.Args))
	}

	in := make([]reflect.Value, 0, len(inv.Args)+1)
	in = append(in, reflect.ValueOf(inv.Target))
	for i, a := range inv.Args {
		pt := paramType(mt, i+1)
		if a == nil {
			in = append(in, reflect.Zero(pt))
			continue
		}
		v := reflect.ValueOf(a)
		if !v.Type().AssignableTo(pt) {
			if !v.Type().ConvertibleTo(pt) {
				return nil, fmt.Errorf("aop: %s.%s 参数 %d 类型为 %T，需要 %v", inv.Name, inv.Method.Name, i, a, pt)
			}
			v = v.Convert(pt)
		}
		in = append(in, v)
	}

	results := inv.Method.Func.Call(in)
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = r.Interface()
	}
	return out, ErrorOf(out)
}

func paramType(mt reflect.Type, i int) reflect.Type {
	last := mt.NumIn() - 1
	if mt.IsVariadic() && i >= last {
		return mt.In(last).Elem()
	}
	return mt.In(i)
}

// ErrorOf 返回结果中最后一个值携带的 error
func ErrorOf(results []any) error {
	if len(results) == 0 {
		return nil
	}
	err, _ := results[len(results)-1].(error)
	return err
}
