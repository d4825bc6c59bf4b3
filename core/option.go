package core

import (
	"github.com/gocrud/container/aop"
	"github.com/gocrud/container/config"
	"github.com/gocrud/container/logging"
)

// Option 定义了修改 Runtime 状态的函数签名
// 这是框架唯一的扩展点
type Option func(rt *Runtime) error

// WithConfiguration 使用配置并立即读取容器设置。
// 依赖设置的选项（如 cron）应放在它之后。
func WithConfiguration(cfg config.Configuration) Option {
	return func(rt *Runtime) error {
		settings, err := LoadSettings(cfg)
		if err != nil {
			return err
		}
		rt.Config = cfg
		rt.Settings = settings
		SetFeature(rt, cfg)
		return nil
	}
}

// WithSettings 直接指定容器设置
func WithSettings(s Settings) Option {
	return func(rt *Runtime) error {
		if err := s.Validate(); err != nil {
			return err
		}
		rt.Settings = s
		return nil
	}
}

// WithLogger 指定日志记录器，默认按设置的级别输出到控制台
func WithLogger(l logging.Logger) Option {
	return func(rt *Runtime) error {
		rt.Logger = l
		return nil
	}
}

// WithHooks 注册扩展钩子实例
func WithHooks(hooks ...any) Option {
	return func(rt *Runtime) error {
		rt.AddHooks(hooks...)
		return nil
	}
}

// WithAdvice 为自动代理添加拦截来源
func WithAdvice(sources ...aop.AdviceSource) Option {
	return func(rt *Runtime) error {
		rt.AddAdvice(sources...)
		return nil
	}
}

// WithCommonInterceptors 按组件名添加作用于所有被代理组件的拦截器
func WithCommonInterceptors(names ...string) Option {
	return func(rt *Runtime) error {
		rt.commonInterceptors = append(rt.commonInterceptors, names...)
		return nil
	}
}

// WithLazyTargets 懒加载单例以代理暴露，目标在第一次调用时创建
func WithLazyTargets() Option {
	return func(rt *Runtime) error {
		rt.targetSources = append(rt.targetSources, aop.NewLazyInitTargetSources())
		return nil
	}
}
