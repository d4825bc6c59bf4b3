package cache

import (
	"reflect"
	"time"
)

// Kind 缓存规则类型
type Kind int

const (
	// Cacheable 缓存方法的第一个返回值
	Cacheable Kind = iota
	// Evict 方法成功返回后清空区域
	Evict
)

// Rule 方法的缓存规则
type Rule struct {
	Kind Kind
	// Region 缓存区域，为空时使用 "组件.方法"
	Region string
	TTL    time.Duration
}

// RuleSource 为组件方法提供缓存规则
type RuleSource interface {
	CacheRule(component string, method reflect.Method) (Rule, bool)
}

// MethodRules 按 "组件.方法" 匹配规则，"组件.*" 匹配该组件的其余方法
type MethodRules map[string]Rule

func (r MethodRules) CacheRule(component string, method reflect.Method) (Rule, bool) {
	if rule, ok := r[component+"."+method.Name]; ok {
		return rule, true
	}
	rule, ok := r[component+".*"]
	return rule, ok
}

func region(rule Rule, component, method string) string {
	if rule.Region != "" {
		return rule.Region
	}
	return component + "." + method
}
