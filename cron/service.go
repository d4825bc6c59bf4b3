package cron

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	"github.com/robfig/cron/v3"
)

// Job 组件声明的定时任务
type Job struct {
	Name string
	// Spec cron 表达式，启用秒字段时为 6 段
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduled 由需要定时执行任务的组件实现
type Scheduled interface {
	ScheduledJobs() []Job
}

type entry struct {
	name string
	id   cron.EntryID
}

// options Registrar 配置选项
type options struct {
	seconds     bool
	location    *time.Location
	logger      logging.Logger
	cronLogging bool
}

// Option 配置 Registrar
type Option func(*options)

// WithSeconds 启用秒级精度
func WithSeconds() Option {
	return func(o *options) { o.seconds = true }
}

// WithLocation 设置时区
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// WithLogger 设置日志记录器
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// EnableCronLogger 启用 cron 库的内部调度日志
func EnableCronLogger() Option {
	return func(o *options) { o.cronLogging = true }
}

// Registrar 初始化后钩子：把 Scheduled 组件的任务注册到调度器，组件销毁时移除。
// 注册名为 <组件名>.<任务名>。
type Registrar struct {
	cron   *cron.Cron
	logger logging.Logger

	mu      sync.RWMutex
	entries map[string][]entry // 组件名 -> 任务

	// ctx 每次 Start 新建，Stop 时取消，传给运行中的任务
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistrar 创建注册器
func NewRegistrar(opts ...Option) *Registrar {
	opt := &options{
		location: time.Local,
		logger:   logging.Discard(),
	}
	for _, o := range opts {
		o(opt)
	}
	logger := opt.logger.WithCategory("cron")

	cronOpts := []cron.Option{
		cron.WithLocation(opt.location),
		cron.WithChain(cron.Recover(newCronLogger(logger))),
	}
	if opt.cronLogging {
		cronOpts = append(cronOpts, cron.WithLogger(newCronLogger(logger)))
	}
	if opt.seconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}

	return &Registrar{
		cron:    cron.New(cronOpts...),
		logger:  logger,
		entries: make(map[string][]entry),
	}
}

// Order 在自动代理之前执行，任务绑定在原始实例上
func (r *Registrar) Order() int { return di.LowestPrecedence - 1 }

// AfterInit 注册组件声明的任务
func (r *Registrar) AfterInit(_ context.Context, instance any, name string) (any, error) {
	s, ok := instance.(Scheduled)
	if !ok {
		return instance, nil
	}
	for _, job := range s.ScheduledJobs() {
		if err := r.add(name, job); err != nil {
			r.remove(name)
			return nil, err
		}
	}
	return instance, nil
}

// BeforeDestruction 移除组件的任务
func (r *Registrar) BeforeDestruction(_ context.Context, _ any, name string) error {
	r.remove(name)
	return nil
}

// RequiresDestruction 只关心 Scheduled 组件
func (r *Registrar) RequiresDestruction(instance any) bool {
	_, ok := instance.(Scheduled)
	return ok
}

func (r *Registrar) add(component string, job Job) error {
	if job.Run == nil {
		return fmt.Errorf("cron: 组件 %q 的任务 %q 没有执行函数", component, job.Name)
	}
	full := component + "." + job.Name

	id, err := r.cron.AddFunc(job.Spec, func() {
		start := time.Now()
		r.logger.Debug("Cron job started", logging.Field{Key: "job", Value: full})
		if err := job.Run(r.jobContext()); err != nil {
			r.logger.Error("Cron job failed",
				logging.Field{Key: "job", Value: full},
				logging.Err(err))
			return
		}
		r.logger.Debug("Cron job completed",
			logging.Field{Key: "job", Value: full},
			logging.Field{Key: "elapsed", Value: time.Since(start).String()})
	})
	if err != nil {
		return fmt.Errorf("cron: 注册任务 %q (%s) 失败: %w", full, job.Spec, err)
	}

	r.mu.Lock()
	r.entries[component] = append(r.entries[component], entry{name: full, id: id})
	r.mu.Unlock()

	r.logger.Info("Cron job registered",
		logging.Field{Key: "job", Value: full},
		logging.Field{Key: "spec", Value: job.Spec})
	return nil
}

func (r *Registrar) remove(component string) {
	r.mu.Lock()
	entries := r.entries[component]
	delete(r.entries, component)
	r.mu.Unlock()

	for _, e := range entries {
		r.cron.Remove(e.id)
		r.logger.Info("Cron job removed", logging.Field{Key: "job", Value: e.name})
	}
}

// Jobs 已注册任务的完整名称，已排序
func (r *Registrar) Jobs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, entries := range r.entries {
		for _, e := range entries {
			names = append(names, e.name)
		}
	}
	slices.Sort(names)
	return names
}

// Next 任务下一次执行的时间
func (r *Registrar) Next(job string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entries := range r.entries {
		for _, e := range entries {
			if e.name != job {
				continue
			}
			// 调度器启动前 cron 不计算 Next
			ce := r.cron.Entry(e.id)
			if ce.Next.IsZero() && ce.Schedule != nil {
				return ce.Schedule.Next(time.Now().In(r.cron.Location())), true
			}
			return ce.Next, true
		}
	}
	return time.Time{}, false
}

// jobContext 当前运行周期的 ctx；未启动时返回已取消的 ctx
func (r *Registrar) jobContext() context.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ctx == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return r.ctx
}

// Start 启动调度，不阻塞
func (r *Registrar) Start(context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.mu.Unlock()

	r.logger.Info(fmt.Sprintf("Cron scheduler starting with %d jobs", len(r.cron.Entries())))
	r.cron.Start()
	return nil
}

// Stop 停止调度并等待运行中的任务结束或 ctx 超时
func (r *Registrar) Stop(ctx context.Context) error {
	r.logger.Info("Cron scheduler stopping")
	stopCtx := r.cron.Stop()
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger 适配器：将框架日志接口适配到 cron 的日志接口
type cronLogger struct {
	logger logging.Logger
}

func newCronLogger(logger logging.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, convertToFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := convertToFields(keysAndValues)
	fields = append(fields, logging.Err(err))
	l.logger.Error(msg, fields...)
}

func convertToFields(keysAndValues []any) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.Field{Key: fmt.Sprintf("%v", keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return fields
}
