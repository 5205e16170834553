package registry

import (
	"context"
	"slices"
	"sync"

	dto "github.com/prometheus/client_model/go"

	"github.com/Bigouden/openstack-swift-exporter/internal/collector"
	"github.com/Bigouden/openstack-swift-exporter/internal/metric"
)

// Registry holds the collectors invoked on every scrape.
//
// Collectors run sequentially in registration order and their output is
// concatenated. A collector error aborts the whole collection and is
// returned untouched: failures are not isolated per collector.
type Registry struct {
	mu         sync.RWMutex
	collectors []collector.Collector
}

func New() *Registry {
	return &Registry{}
}

// Register adds c. Registering the same collector twice duplicates its
// output.
func (r *Registry) Register(c collector.Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors = append(r.collectors, c)
}

func (r *Registry) CollectAll(ctx context.Context) ([]metric.Sample, error) {
	r.mu.RLock()
	collectors := slices.Clone(r.collectors)
	r.mu.RUnlock()

	var samples []metric.Sample
	for _, c := range collectors {
		s, err := c.Collect(ctx)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s...)
	}
	return samples, nil
}

// GatherContext collects every registered collector and groups the samples
// into metric families.
func (r *Registry) GatherContext(ctx context.Context) ([]*dto.MetricFamily, error) {
	samples, err := r.CollectAll(ctx)
	if err != nil {
		return nil, err
	}
	return metric.Families(samples)
}

// Gather implements prometheus.Gatherer.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.GatherContext(context.Background())
}
