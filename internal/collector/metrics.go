package collector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
)

// Metrics instruments the collector itself. A nil *Metrics records nothing.
type Metrics struct {
	listings *prometheus.CounterVec
	duration prometheus.Histogram
	objects  *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		listings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "openstack_swift_exporter",
				Name:      "listings_total",
				Help:      "Container listings performed, by result.",
			}, []string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "openstack_swift_exporter",
				Name:      "listing_duration_seconds",
				Help:      "Duration of container listings.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		objects: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "openstack_swift_exporter",
				Name:      "listed_objects",
				Help:      "Objects returned by the last successful listing.",
			}, []string{container},
		),
	}
	reg.MustRegister(m.listings, m.duration, m.objects)
	return m
}

func (m *Metrics) observe(containerName string, objects int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.Observe(elapsed.Seconds())
	if err != nil {
		m.listings.WithLabelValues(string(kindOf(err))).Inc()
		return
	}
	m.listings.WithLabelValues(resultSuccess).Inc()
	m.objects.WithLabelValues(containerName).Set(float64(objects))
}
