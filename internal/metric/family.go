package metric

import (
	"fmt"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"
)

// Families groups samples into metric families, in order of first
// appearance. Label names and values are validated the way client_golang
// validates const metrics.
func Families(samples []Sample) ([]*dto.MetricFamily, error) {
	var families []*dto.MetricFamily
	index := make(map[string]*dto.MetricFamily)
	types := make(map[string]Type)

	for _, s := range samples {
		mf, ok := index[s.Name]
		if !ok {
			mf = &dto.MetricFamily{
				Name: proto.String(s.Name),
				Help: proto.String(s.Help),
				Type: familyType(s.Type).Enum(),
			}
			index[s.Name] = mf
			types[s.Name] = s.Type
			families = append(families, mf)
		} else if types[s.Name] != s.Type || mf.GetHelp() != s.Help {
			return nil, fmt.Errorf("metric %q: inconsistent type or help across samples", s.Name)
		}

		m, err := toMetric(s)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", s.Name, err)
		}
		mf.Metric = append(mf.Metric, m)
	}
	return families, nil
}

func toMetric(s Sample) (*dto.Metric, error) {
	names := make([]string, 0, len(s.Labels))
	for name := range s.Labels {
		names = append(names, name)
	}
	slices.Sort(names)

	values := make([]string, len(names))
	for i, name := range names {
		values[i] = s.Labels[name]
	}

	desc := prometheus.NewDesc(s.Name, s.Help, names, nil)
	cm, err := prometheus.NewConstMetric(desc, s.Type.valueType(), s.Value, values...)
	if err != nil {
		return nil, err
	}

	m := &dto.Metric{}
	if err := cm.Write(m); err != nil {
		return nil, err
	}
	return m, nil
}

func familyType(t Type) dto.MetricType {
	if t == Counter {
		return dto.MetricType_COUNTER
	}
	return dto.MetricType_GAUGE
}
