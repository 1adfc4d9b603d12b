package sinks

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sitecrawler/internal/progress"
)

// PrometheusObserver exports crawl progress via Prometheus.
type PrometheusObserver struct {
	results    *prometheus.CounterVec
	errors     *prometheus.CounterVec
	bytes      prometheus.Counter
	duration   *prometheus.HistogramVec
	dispatched prometheus.Gauge
	retrieved  prometheus.Gauge
	finished   prometheus.Gauge
}

// NewPrometheusObserver registers the collectors against reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_results_total",
			Help: "Reported fetches partitioned by status class.",
		}, []string{"status_class"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_fetch_errors_total",
			Help: "Failed fetches partitioned by error kind.",
		}, []string{"kind"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_fetch_bytes_total",
			Help: "Response bytes downloaded.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"status_class"}),
		dispatched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_dispatched",
			Help: "URLs submitted to the worker pool.",
		}),
		retrieved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_retrieved",
			Help: "Dispatched URLs whose result has been reported.",
		}),
		finished: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_finished",
			Help: "1 once the crawl has finished.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		o.results,
		o.errors,
		o.bytes,
		o.duration,
		o.dispatched,
		o.retrieved,
		o.finished,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return o, nil
}

// Notify implements progress.Observer.
func (o *PrometheusObserver) Notify(evt progress.Event) {
	o.dispatched.Set(float64(evt.Counters.Dispatched))
	o.retrieved.Set(float64(evt.Counters.Retrieved))
	switch evt.Kind {
	case progress.KindFinished:
		o.finished.Set(1)
	case progress.KindResult:
		res := evt.Result
		if res == nil {
			return
		}
		class := string(progress.ClassifyResult(res))
		o.results.WithLabelValues(class).Inc()
		if res.Failed() {
			o.errors.WithLabelValues(string(res.ErrorKind)).Inc()
		}
		if res.Size > 0 {
			o.bytes.Add(float64(res.Size))
		}
		if res.Elapsed > 0 {
			o.duration.WithLabelValues(class).Observe(res.Elapsed.Seconds())
		}
	}
}
