package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	hitsDesc      = prometheus.NewDesc("cache_hits_total", "Total cache hits", nil, nil)
	missesDesc    = prometheus.NewDesc("cache_misses_total", "Total cache misses", nil, nil)
	evictionsDesc = prometheus.NewDesc("cache_evictions_total", "Total region evictions", nil, nil)
)

// Describe 实现 prometheus.Collector
func (i *Interceptor) Describe(ch chan<- *prometheus.Desc) {
	ch <- hitsDesc
	ch <- missesDesc
	ch <- evictionsDesc
}

// Collect 在采集时读取统计快照
func (i *Interceptor) Collect(ch chan<- prometheus.Metric) {
	s := i.Stats()
	ch <- prometheus.MustNewConstMetric(hitsDesc, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(missesDesc, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(evictionsDesc, prometheus.CounterValue, float64(s.Evictions))
}
