package collector

import (
	"context"

	"github.com/Bigouden/openstack-swift-exporter/internal/metric"
)

type Collector interface {
	Collect(context.Context) ([]metric.Sample, error)
}
