package etcd

import (
	"errors"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdClientOptions etcd 客户端配置选项
type EtcdClientOptions struct {
	Name               string        // 客户端名称
	Endpoints          []string      // etcd 服务器地址列表
	DialTimeout        time.Duration // 连接超时时间
	Username           string        // 用户名（可选）
	Password           string        // 密码（可选）
	AutoSyncInterval   time.Duration // 自动同步间隔（可选）
	MaxCallSendMsgSize int           // 最大发送消息大小（可选）
	MaxCallRecvMsgSize int           // 最大接收消息大小（可选）

	// Primary 按类型注入 *clientv3.Client 时优先选择
	Primary bool
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *EtcdClientOptions {
	return &EtcdClientOptions{
		Name:        name,
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
		Primary:     name == DefaultName,
	}
}

// Validate 验证配置
func (o *EtcdClientOptions) Validate() error {
	if o.Name == "" {
		return errors.New("etcd client name is required")
	}
	if len(o.Endpoints) == 0 {
		return errors.New("etcd endpoints are required")
	}
	if o.DialTimeout <= 0 {
		return errors.New("etcd dial timeout must be positive")
	}
	return nil
}

func (o *EtcdClientOptions) config() clientv3.Config {
	cfg := clientv3.Config{
		Endpoints:          o.Endpoints,
		DialTimeout:        o.DialTimeout,
		AutoSyncInterval:   o.AutoSyncInterval,
		MaxCallSendMsgSize: o.MaxCallSendMsgSize,
		MaxCallRecvMsgSize: o.MaxCallRecvMsgSize,
	}
	if o.Username != "" {
		cfg.Username = o.Username
		cfg.Password = o.Password
	}
	return cfg
}

// WithEndpoints 设置服务器地址
func WithEndpoints(endpoints ...string) func(*EtcdClientOptions) {
	return func(o *EtcdClientOptions) { o.Endpoints = endpoints }
}

// WithAuth 设置认证信息
func WithAuth(username, password string) func(*EtcdClientOptions) {
	return func(o *EtcdClientOptions) {
		o.Username = username
		o.Password = password
	}
}

// WithDialTimeout 设置连接超时
func WithDialTimeout(d time.Duration) func(*EtcdClientOptions) {
	return func(o *EtcdClientOptions) { o.DialTimeout = d }
}
