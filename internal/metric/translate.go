package metric

import (
	"maps"

	"github.com/Bigouden/openstack-swift-exporter/internal/objectstore"
)

const LabelName = "name"

// Translator turns object records into samples following a descriptor table.
type Translator struct {
	descriptors []Descriptor
}

func NewTranslator(descriptors ...Descriptor) *Translator {
	return &Translator{descriptors: descriptors}
}

var defaultTranslator = NewTranslator(Descriptors...)

// Translate converts record with the default schema.
func Translate(record objectstore.ObjectRecord, staticLabels map[string]string) []Sample {
	return defaultTranslator.Translate(record, staticLabels)
}

// Translate emits one sample per descriptor, in table order. All samples of
// a record share one label map.
func (t *Translator) Translate(record objectstore.ObjectRecord, staticLabels map[string]string) []Sample {
	labels := make(map[string]string, len(staticLabels)+1)
	maps.Copy(labels, staticLabels)
	labels[LabelName] = record.Name

	samples := make([]Sample, 0, len(t.descriptors))
	for _, d := range t.descriptors {
		samples = append(samples, Sample{
			Name:   d.Name(),
			Value:  d.Field.value(record),
			Type:   d.Type,
			Help:   d.Help,
			Labels: labels,
		})
	}
	return samples
}
