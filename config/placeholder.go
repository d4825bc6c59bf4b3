package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocrud/container/di"
)

// Resolve 替换字符串中的 ${key} 与 ${key:-default} 占位符，不支持嵌套。
// 键本身使用 ":" 分隔层级，所以默认值用 ":-" 引出。
func Resolve(cfg Configuration, s string) (string, error) {
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			return "", fmt.Errorf("config: 占位符未闭合: %q", s)
		}
		b.WriteString(rest[:start])

		expr := rest[start+2 : start+end]
		key, def, hasDefault := strings.Cut(expr, ":-")
		if _, ok := cfg.Lookup(key); ok {
			b.WriteString(cfg.Get(key))
		} else if hasDefault {
			b.WriteString(def)
		} else {
			return "", fmt.Errorf("config: 无法解析占位符 ${%s}", expr)
		}
		rest = rest[start+end+1:]
	}
}

// PlaceholderHook 在属性应用前解析字符串属性中的占位符
type PlaceholderHook struct {
	cfg Configuration
}

func NewPlaceholderHook(cfg Configuration) *PlaceholderHook {
	return &PlaceholderHook{cfg: cfg}
}

func (h *PlaceholderHook) Order() int { return 0 }

func (h *PlaceholderHook) MutateProperties(_ context.Context, props []di.PropertyValue, _ any, name string) ([]di.PropertyValue, error) {
	out := make([]di.PropertyValue, 0, len(props))
	for _, pv := range props {
		if s, ok := pv.Value.(string); ok && pv.Ref == "" {
			resolved, err := Resolve(h.cfg, s)
			if err != nil {
				return nil, fmt.Errorf("config: 组件 %q 的属性 %s: %w", name, pv.Name, err)
			}
			pv.Value = resolved
		}
		out = append(out, pv)
	}
	return out, nil
}
