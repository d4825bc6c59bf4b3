package di

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	ErrNotFound            = errors.New("di: 组件不存在")
	ErrAmbiguous           = errors.New("di: 存在多个候选组件")
	ErrCircularReference   = errors.New("di: 循环引用")
	ErrConfiguration       = errors.New("di: 配置错误")
	ErrUnsatisfied         = errors.New("di: 依赖无法满足")
	ErrWrappingConsistency = errors.New("di: 包装一致性冲突")
	ErrClosed              = errors.New("di: 容器已关闭")
)

// Phase 组件创建阶段。
type Phase string

const (
	PhaseDependsOn    Phase = "depends-on"
	PhaseShortCircuit Phase = "short-circuit"
	PhaseInstantiate  Phase = "instantiate"
	PhasePopulate     Phase = "populate"
	PhaseInitialize   Phase = "initialize"
	PhaseReconcile    Phase = "reconcile"
)

// CreationError 组件创建失败。
type CreationError struct {
	Name  string
	Phase Phase
	Err   error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("di: 创建组件 %q 失败 (%s): %v", e.Name, e.Phase, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// ConfigurationError 描述本身无效，不会自动重试。
type ConfigurationError struct {
	Name   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Name == "" {
		return "di: 配置错误: " + e.Reason
	}
	return fmt.Sprintf("di: 组件 %q 配置错误: %s", e.Name, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configErrorf(name, format string, args ...any) error {
	return &ConfigurationError{Name: name, Reason: fmt.Sprintf(format, args...)}
}

// UnsatisfiedDependencyError 必需的注入点无法解析。
type UnsatisfiedDependencyError struct {
	Component string
	Member    string
	Type      reflect.Type
	Err       error
}

func (e *UnsatisfiedDependencyError) Error() string {
	msg := fmt.Sprintf("di: 组件 %q 的 %s 依赖无法满足 (类型 %v)", e.Component, e.Member, e.Type)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsatisfiedDependencyError) Is(target error) bool { return target == ErrUnsatisfied }

func (e *UnsatisfiedDependencyError) Unwrap() error { return e.Err }

// CircularReferenceError 无法通过提前引用打破的循环。
type CircularReferenceError struct {
	Chain []string
}

func (e *CircularReferenceError) Error() string {
	return "di: 检测到循环引用: " + strings.Join(e.Chain, " -> ")
}

func (e *CircularReferenceError) Is(target error) bool { return target == ErrCircularReference }

// WrappingConsistencyError 已分发的提前引用与最终实例不一致。
type WrappingConsistencyError struct {
	Name       string
	Dependents []string
}

func (e *WrappingConsistencyError) Error() string {
	return fmt.Sprintf("di: 组件 %q 的原始实例已注入到 [%s]，但最终被包装为另一个对象",
		e.Name, strings.Join(e.Dependents, ", "))
}

func (e *WrappingConsistencyError) Is(target error) bool { return target == ErrWrappingConsistency }

// NotFoundError 按名称或类型找不到组件。
type NotFoundError struct {
	Name string
	Type reflect.Type
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("di: 组件 %q 不存在", e.Name)
	}
	return fmt.Sprintf("di: 类型 %v 没有可用组件", e.Type)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AmbiguousError 按类型解析时存在多个候选且无法裁决。
type AmbiguousError struct {
	Type       reflect.Type
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("di: 类型 %v 存在多个候选组件: %s", e.Type, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousError) Is(target error) bool { return target == ErrAmbiguous }
