package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Type int

const (
	Gauge Type = iota
	Counter
)

func (t Type) String() string {
	switch t {
	case Gauge:
		return "gauge"
	case Counter:
		return "counter"
	default:
		return "unknown"
	}
}

func (t Type) valueType() prometheus.ValueType {
	if t == Counter {
		return prometheus.CounterValue
	}
	return prometheus.GaugeValue
}

// Sample is one measurement exposed at scrape time. Samples and their label
// maps must not be modified once built.
type Sample struct {
	Name   string
	Value  float64
	Type   Type
	Help   string
	Labels map[string]string
}
