package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector 以扩展钩子的方式统计组件生命周期事件。
// 实现了 prometheus.Collector 的组件在初始化后会注册到同一个 registry，
// 销毁时注销。
type Collector struct {
	registry *prometheus.Registry
	logger   logging.Logger

	instantiations  *prometheus.CounterVec
	earlyRefs       *prometheus.CounterVec
	initializations *prometheus.CounterVec
	destructions    *prometheus.CounterVec
	initDuration    *prometheus.HistogramVec

	started    sync.Map // name -> time.Time
	mu         sync.Mutex
	registered map[string]prometheus.Collector
}

// NewCollector 创建使用独立 registry 的收集器，namespace 为空时使用 "container"
func NewCollector(namespace string, logger logging.Logger) *Collector {
	if namespace == "" {
		namespace = "container"
	}
	if logger == nil {
		logger = logging.Discard()
	}

	c := &Collector{
		registry:   prometheus.NewRegistry(),
		logger:     logger.WithCategory("metrics"),
		registered: make(map[string]prometheus.Collector),
		instantiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_instantiations_total",
			Help:      "Total number of component instantiations",
		}, []string{"component"}),
		earlyRefs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_early_references_total",
			Help:      "Total number of early references handed out for circular dependencies",
		}, []string{"component"}),
		initializations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_initializations_total",
			Help:      "Total number of completed component initializations",
		}, []string{"component"}),
		destructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_destructions_total",
			Help:      "Total number of component destructions",
		}, []string{"component"}),
		initDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "component_init_duration_seconds",
			Help:      "Time from instantiation to the end of initialization",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),
	}
	c.registry.MustRegister(c.instantiations, c.earlyRefs, c.initializations, c.destructions, c.initDuration)
	return c
}

// Registry 收集器使用的 registry
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler 以 Prometheus 文本格式输出指标
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Order() int { return di.LowestPrecedence }

func (c *Collector) AfterInstantiation(_ context.Context, _ any, name string) (bool, error) {
	c.instantiations.WithLabelValues(name).Inc()
	c.started.Store(name, time.Now())
	return true, nil
}

func (c *Collector) EarlyReference(_ context.Context, instance any, name string) (any, error) {
	c.earlyRefs.WithLabelValues(name).Inc()
	return instance, nil
}

func (c *Collector) AfterInit(_ context.Context, instance any, name string) (any, error) {
	c.initializations.WithLabelValues(name).Inc()
	if v, ok := c.started.LoadAndDelete(name); ok {
		c.initDuration.WithLabelValues(name).Observe(time.Since(v.(time.Time)).Seconds())
	}
	if pc, ok := instance.(prometheus.Collector); ok && name != "" {
		c.register(name, pc)
	}
	return instance, nil
}

func (c *Collector) BeforeDestruction(_ context.Context, _ any, name string) error {
	c.destructions.WithLabelValues(name).Inc()
	c.mu.Lock()
	pc, ok := c.registered[name]
	delete(c.registered, name)
	c.mu.Unlock()
	if ok {
		c.registry.Unregister(pc)
	}
	return nil
}

func (c *Collector) RequiresDestruction(any) bool { return true }

func (c *Collector) register(name string, pc prometheus.Collector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.registered[name]; ok {
		return
	}
	if err := c.registry.Register(pc); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			c.logger.Warn("注册组件指标失败", logging.Component(name), logging.Err(err))
		}
		return
	}
	c.registered[name] = pc
}
