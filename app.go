package app

import "github.com/gocrud/container/core"

// NewRuntime 创建运行时并应用选项
// 适用于需要自行控制启动和关闭的场景，例如测试
func NewRuntime(opts ...core.Option) (*core.Runtime, error) {
	rt := core.NewRuntime()
	if err := rt.Apply(opts...); err != nil {
		return nil, err
	}
	return rt, nil
}
