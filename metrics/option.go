package metrics

import "github.com/gocrud/container/core"

// New 启用组件生命周期指标，收集器可通过 core.GetFeature 取得
func New(namespace string) core.Option {
	return func(rt *core.Runtime) error {
		c := NewCollector(namespace, rt.Logger)
		rt.AddHooks(c)
		rt.Features.Set(c)
		return nil
	}
}
