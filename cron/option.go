package cron

import (
	"fmt"
	"time"

	"github.com/gocrud/container/core"
)

// New 启用定时任务：注册 Registrar 钩子，并随运行时启动和停止。
// 设置中的 cron.seconds 与 cron.location 作为默认值，opts 可以覆盖。
func New(opts ...Option) core.Option {
	return func(rt *core.Runtime) error {
		var base []Option
		if rt.Logger != nil {
			base = append(base, WithLogger(rt.Logger))
		}
		if rt.Settings.Cron.Seconds {
			base = append(base, WithSeconds())
		}
		if name := rt.Settings.Cron.Location; name != "" {
			loc, err := time.LoadLocation(name)
			if err != nil {
				return fmt.Errorf("cron: 无效的时区 %q: %w", name, err)
			}
			base = append(base, WithLocation(loc))
		}

		registrar := NewRegistrar(append(base, opts...)...)
		rt.AddHooks(registrar)
		rt.Features.Set(registrar)
		rt.Lifecycle.OnStart(registrar.Start)
		rt.Lifecycle.OnStop(registrar.Stop)
		return nil
	}
}
