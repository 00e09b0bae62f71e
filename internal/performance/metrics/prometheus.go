package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exposes collector snapshots as Prometheus metrics.
//
// Every scrape takes a fresh Snapshot, so the exported values always match
// what thresholds would see at that moment.
type PrometheusCollector struct {
	source *Collector

	counterDesc *prometheus.Desc
	rateDesc    *prometheus.Desc
	trendDesc   *prometheus.Desc
	checkDesc   *prometheus.Desc
	vusDesc     *prometheus.Desc
}

// NewPrometheusCollector creates a prometheus.Collector backed by c.
func NewPrometheusCollector(c *Collector, namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		source: c,
		counterDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "counter_total"),
			"Total of a counter metric.",
			[]string{"metric"}, nil,
		),
		rateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "rate_ratio"),
			"Fraction of non-zero samples of a rate metric.",
			[]string{"metric"}, nil,
		),
		trendDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "trend_milliseconds"),
			"Distribution of a trend metric in milliseconds.",
			[]string{"metric"}, nil,
		),
		checkDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "check_results_total"),
			"Results of a named check.",
			[]string{"check", "result"}, nil,
		),
		vusDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "vus"),
			"Number of active virtual users.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.counterDesc
	ch <- p.rateDesc
	ch <- p.trendDesc
	ch <- p.checkDesc
	ch <- p.vusDesc
}

// Collect implements prometheus.Collector.
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := p.source.Snapshot()

	names := make([]string, 0, len(snap.Metrics))
	for name := range snap.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := snap.Metrics[name]
		switch m.Type {
		case Counter:
			ch <- prometheus.MustNewConstMetric(p.counterDesc, prometheus.CounterValue, m.Sum, name)
		case Rate:
			ch <- prometheus.MustNewConstMetric(p.rateDesc, prometheus.GaugeValue, m.Rate(), name)
		case Trend:
			quantiles := map[float64]float64{
				0.5:  m.Percentile(50),
				0.9:  m.Percentile(90),
				0.95: m.Percentile(95),
				0.99: m.Percentile(99),
			}
			ch <- prometheus.MustNewConstSummary(p.trendDesc, uint64(m.Count), m.Sum/1000, quantiles, name)
		}
	}

	for _, c := range snap.Checks {
		ch <- prometheus.MustNewConstMetric(p.checkDesc, prometheus.CounterValue, float64(c.Passes), c.Name, "pass")
		ch <- prometheus.MustNewConstMetric(p.checkDesc, prometheus.CounterValue, float64(c.Fails), c.Name, "fail")
	}

	ch <- prometheus.MustNewConstMetric(p.vusDesc, prometheus.GaugeValue, float64(snap.ActiveVUs))
}
