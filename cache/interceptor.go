package cache

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/gocrud/container/aop"
	"github.com/gocrud/container/logging"
)

// Stats 命中统计
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Interceptor 按缓存规则拦截方法调用。
// 键为 "区域:参数"，参数不含 context.Context，以 JSON 编码；
// 只缓存第一个返回值，且只在没有错误时写入。
type Interceptor struct {
	store  Store
	rules  RuleSource
	logger logging.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewInterceptor 创建缓存拦截器
func NewInterceptor(store Store, rules RuleSource, logger logging.Logger) *Interceptor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Interceptor{store: store, rules: rules, logger: logger.WithCategory("cache")}
}

// Store 底层存储
func (i *Interceptor) Store() Store { return i.store }

// Stats 返回统计快照
func (i *Interceptor) Stats() Stats {
	return Stats{Hits: i.hits.Load(), Misses: i.misses.Load(), Evictions: i.evictions.Load()}
}

func (i *Interceptor) Invoke(inv *aop.Invocation) ([]any, error) {
	rule, ok := i.rules.CacheRule(inv.Name, inv.Method)
	if !ok {
		return inv.Proceed()
	}
	ctx, ok := inv.Context()
	if !ok {
		ctx = context.Background()
	}
	area := region(rule, inv.Name, inv.Method.Name)

	if rule.Kind == Evict {
		results, err := inv.Proceed()
		if err != nil {
			return results, err
		}
		if derr := i.store.DeletePrefix(ctx, area+":"); derr != nil {
			i.logger.Warn("清空缓存失败", logging.Field{Key: "region", Value: area}, logging.Err(derr))
		} else {
			i.evictions.Add(1)
		}
		return results, nil
	}

	mt := inv.Method.Type
	if mt.NumOut() == 0 || (mt.NumOut() == 1 && inv.ReturnsError()) {
		return inv.Proceed()
	}
	key, err := cacheKey(area, inv.Args)
	if err != nil {
		i.logger.Debug("参数无法编码，跳过缓存", logging.Field{Key: "region", Value: area}, logging.Err(err))
		return inv.Proceed()
	}

	if data, hit, gerr := i.store.Get(ctx, key); gerr != nil {
		i.logger.Warn("读取缓存失败", logging.Field{Key: "key", Value: key}, logging.Err(gerr))
	} else if hit {
		out := reflect.New(mt.Out(0))
		if uerr := json.Unmarshal(data, out.Interface()); uerr == nil {
			i.hits.Add(1)
			results := inv.WithError(nil)
			results[0] = out.Elem().Interface()
			return results, nil
		}
	}

	i.misses.Add(1)
	results, err := inv.Proceed()
	if err != nil || len(results) == 0 {
		return results, err
	}
	data, merr := json.Marshal(results[0])
	if merr != nil {
		i.logger.Debug("返回值无法编码，跳过缓存", logging.Field{Key: "key", Value: key}, logging.Err(merr))
		return results, nil
	}
	if serr := i.store.Set(ctx, key, data, rule.TTL); serr != nil {
		i.logger.Warn("写入缓存失败", logging.Field{Key: "key", Value: key}, logging.Err(serr))
	}
	return results, nil
}

func cacheKey(area string, args []any) (string, error) {
	parts := make([]any, 0, len(args))
	for _, a := range args {
		if _, ok := a.(context.Context); ok {
			continue
		}
		parts = append(parts, a)
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(len(area) + 1 + len(data))
	b.WriteString(area)
	b.WriteByte(':')
	b.Write(data)
	return b.String(), nil
}

// Advice 把至少有一个方法带缓存规则的组件交给自动代理
func Advice(rules RuleSource) aop.AdviceSource {
	return func(typ reflect.Type, name string) ([]aop.Interceptor, bool) {
		if typ == nil {
			return nil, false
		}
		for idx := 0; idx < typ.NumMethod(); idx++ {
			if _, ok := rules.CacheRule(name, typ.Method(idx)); ok {
				return nil, true
			}
		}
		return nil, false
	}
}
