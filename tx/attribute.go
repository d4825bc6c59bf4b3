package tx

import (
	"database/sql"
	"errors"
	"reflect"
	"slices"
	"strings"
)

// Propagation 事务传播行为
type Propagation int

const (
	// PropagationRequired 存在事务时加入，否则新建
	PropagationRequired Propagation = iota
	// PropagationRequiresNew 总是新建事务
	PropagationRequiresNew
	// PropagationSupports 存在事务时加入，否则非事务执行
	PropagationSupports
	// PropagationMandatory 必须存在事务
	PropagationMandatory
)

func (p Propagation) String() string {
	switch p {
	case PropagationRequired:
		return "required"
	case PropagationRequiresNew:
		return "requires_new"
	case PropagationSupports:
		return "supports"
	case PropagationMandatory:
		return "mandatory"
	default:
		return "unknown"
	}
}

// RollbackRule 根据错误决定是否回滚
type RollbackRule struct {
	match      func(error) bool
	noRollback bool
	desc       string
}

func (r RollbackRule) String() string { return r.desc }

// RollbackFor 错误链中出现 target 时回滚
func RollbackFor(target error) RollbackRule {
	return RollbackRule{match: sameError(target), desc: "rollback:" + target.Error()}
}

// NoRollbackFor 错误链中出现 target 时提交
func NoRollbackFor(target error) RollbackRule {
	return RollbackRule{match: sameError(target), noRollback: true, desc: "commit:" + target.Error()}
}

// RollbackForType 错误链中出现类型 T 时回滚
func RollbackForType[T error]() RollbackRule {
	return RollbackRule{match: isType[T], desc: "rollback:" + reflect.TypeFor[T]().String()}
}

// NoRollbackForType 错误链中出现类型 T 时提交
func NoRollbackForType[T error]() RollbackRule {
	return RollbackRule{match: isType[T], noRollback: true, desc: "commit:" + reflect.TypeFor[T]().String()}
}

func sameError(target error) func(error) bool {
	comparable := reflect.TypeOf(target).Comparable()
	return func(err error) bool { return comparable && err == target }
}

func isType[T error](err error) bool {
	_, ok := err.(T)
	return ok
}

// Attribute 方法的事务属性
type Attribute struct {
	Propagation Propagation
	ReadOnly    bool
	Isolation   sql.IsolationLevel
	Rules       []RollbackRule
}

// RollbackOn 在错误链上离根最近的匹配规则生效，同一深度按声明顺序；
// 没有规则匹配时任何错误都回滚。
func (a Attribute) RollbackOn(err error) bool {
	if err == nil {
		return false
	}

	best, bestDepth := -1, -1
	for i, rule := range a.Rules {
		d := depth(err, rule.match, 0)
		if d >= 0 && (bestDepth < 0 || d < bestDepth) {
			best, bestDepth = i, d
		}
	}
	if best < 0 {
		return true
	}
	return !a.Rules[best].noRollback
}

// depth 返回错误树中第一个匹配节点的深度，-1 表示没有匹配
func depth(err error, match func(error) bool, d int) int {
	if err == nil {
		return -1
	}
	if match(err) {
		return d
	}
	switch x := err.(type) {
	case interface{ Unwrap() error }:
		return depth(x.Unwrap(), match, d+1)
	case interface{ Unwrap() []error }:
		found := -1
		for _, e := range x.Unwrap() {
			if n := depth(e, match, d+1); n >= 0 && (found < 0 || n < found) {
				found = n
			}
		}
		return found
	}
	return -1
}

// ErrNoTransaction Mandatory 传播行为下没有可加入的事务
var ErrNoTransaction = errors.New("tx: 当前没有事务")

// AttributeSource 为组件方法提供事务属性
type AttributeSource interface {
	TransactionAttribute(component string, method reflect.Method) (Attribute, bool)
}

// NameMatchSource 按方法名匹配事务属性，支持 "*" 前缀、后缀通配。
// 精确匹配优先，其次是最长的模式。
type NameMatchSource map[string]Attribute

func (s NameMatchSource) TransactionAttribute(_ string, method reflect.Method) (Attribute, bool) {
	if attr, ok := s[method.Name]; ok {
		return attr, true
	}

	patterns := make([]string, 0, len(s))
	for p := range s {
		if strings.Contains(p, "*") && simpleMatch(p, method.Name) {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return Attribute{}, false
	}
	slices.SortFunc(patterns, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	return s[patterns[0]], true
}

// ComponentSource 只对指定组件生效的属性来源
type ComponentSource struct {
	Components []string
	Source     AttributeSource
}

func (s ComponentSource) TransactionAttribute(component string, method reflect.Method) (Attribute, bool) {
	if !slices.Contains(s.Components, component) {
		return Attribute{}, false
	}
	return s.Source.TransactionAttribute(component, method)
}

// simpleMatch 支持 "xxx*"、"*xxx"、"*xxx*" 与 "*"
func simpleMatch(pattern, s string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1:
		return strings.Contains(s, pattern[1:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(s, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(s, pattern[:len(pattern)-1])
	default:
		return pattern == s
	}
}
