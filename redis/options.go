package redis

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClientOptions 单个 Redis 客户端的配置
type RedisClientOptions struct {
	Name     string
	Addr     string
	Username string
	Password string
	DB       int

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Primary 按类型注入 *redis.Client 时优先选择
	Primary bool
}

// NewDefaultOptions 默认配置
func NewDefaultOptions(name string) *RedisClientOptions {
	return &RedisClientOptions{
		Name:         name,
		Addr:         "localhost:6379",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		Primary:      name == DefaultName,
	}
}

// Validate 校验配置
func (o *RedisClientOptions) Validate() error {
	if o.Name == "" {
		return errors.New("name is required")
	}
	if o.Addr == "" {
		return errors.New("addr is required")
	}
	if o.DB < 0 {
		return errors.New("db must not be negative")
	}
	if o.PoolSize <= 0 {
		return errors.New("pool size must be positive")
	}
	return nil
}

func (o *RedisClientOptions) clientOptions() *redis.Options {
	return &redis.Options{
		Addr:         o.Addr,
		Username:     o.Username,
		Password:     o.Password,
		DB:           o.DB,
		PoolSize:     o.PoolSize,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
	}
}

// WithAddr 设置地址
func WithAddr(addr string) func(*RedisClientOptions) {
	return func(o *RedisClientOptions) { o.Addr = addr }
}

// WithAuth 设置认证信息
func WithAuth(username, password string) func(*RedisClientOptions) {
	return func(o *RedisClientOptions) {
		o.Username = username
		o.Password = password
	}
}

// WithDB 设置数据库编号
func WithDB(db int) func(*RedisClientOptions) {
	return func(o *RedisClientOptions) { o.DB = db }
}

// WithPoolSize 设置连接池大小
func WithPoolSize(n int) func(*RedisClientOptions) {
	return func(o *RedisClientOptions) { o.PoolSize = n }
}
