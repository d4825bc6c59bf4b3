package config

// Load 绑定指定节的配置到 T，section 为空时绑定全部配置
func Load[T any](cfg Configuration, section string) (T, error) {
	var t T
	err := cfg.Bind(section, &t)
	return t, err
}

// LoadOrDefault 节不存在时返回 def；存在时在 def 的基础上覆盖
func LoadOrDefault[T any](cfg Configuration, section string, def T) (T, error) {
	if _, ok := cfg.Lookup(section); !ok {
		return def, nil
	}
	t := def
	err := cfg.Bind(section, &t)
	return t, err
}
