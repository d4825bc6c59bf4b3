package core

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gocrud/container/config"
	"github.com/gocrud/container/logging"
)

// SettingsSection 容器设置所在的配置节
const SettingsSection = "container"

// Settings 容器设置，整个容器生命周期内不变
type Settings struct {
	// AllowCircularReferences 是否允许单例之间的循环引用
	AllowCircularReferences bool `json:"allowCircularReferences"`
	// AllowRawInjectionDespiteWrapping 组件最终被包装时，是否允许依赖方持有原始实例
	AllowRawInjectionDespiteWrapping bool `json:"allowRawInjectionDespiteWrapping"`
	// CommonInterceptorsFirst 公共拦截器是否排在组件专属拦截器之前
	CommonInterceptorsFirst bool `json:"commonInterceptorsFirst"`
	// PreInstantiate 构建完成后是否创建所有非懒加载单例
	PreInstantiate bool `json:"preInstantiate"`
	// LogLevel 最小日志级别
	LogLevel string `json:"logLevel" validate:"oneof=trace debug info warn error"`
	// ShutdownTimeout 优雅关闭的超时秒数
	ShutdownTimeout int `json:"shutdownTimeout" validate:"gte=0"`

	Cron CronSettings `json:"cron"`
}

// CronSettings 定时任务设置
type CronSettings struct {
	// Seconds 表达式是否包含秒字段
	Seconds bool `json:"seconds"`
	// Location 时区，空值为本地时区
	Location string `json:"location"`
}

// DefaultSettings 默认设置
func DefaultSettings() Settings {
	return Settings{
		AllowCircularReferences: true,
		CommonInterceptorsFirst: true,
		PreInstantiate:          true,
		LogLevel:                "info",
		ShutdownTimeout:         5,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 校验设置
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("core: 无效的容器设置: %w", err)
	}
	return nil
}

// Level 解析后的日志级别
func (s Settings) Level() logging.LogLevel {
	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return logging.LogLevelInfo
	}
	return level
}

// LoadSettings 从配置节 container 读取设置，未配置的项保持默认值
func LoadSettings(cfg config.Configuration) (Settings, error) {
	s, err := config.LoadOrDefault(cfg, SettingsSection, DefaultSettings())
	if err != nil {
		return Settings{}, err
	}
	return s, s.Validate()
}
