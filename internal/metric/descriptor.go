package metric

import (
	"strings"

	"github.com/Bigouden/openstack-swift-exporter/internal/objectstore"
)

// Namespace prefixes every object metric name.
const Namespace = "openstack_swift_object"

// Field is a numeric attribute of an objectstore.ObjectRecord.
type Field int

const (
	FieldBytes Field = iota
	FieldLastModified
)

func (f Field) String() string {
	switch f {
	case FieldBytes:
		return "bytes"
	case FieldLastModified:
		return "last_modified"
	default:
		return "unknown"
	}
}

func (f Field) value(record objectstore.ObjectRecord) float64 {
	switch f {
	case FieldBytes:
		return float64(record.Bytes)
	case FieldLastModified:
		t := record.LastModified
		return float64(t.Unix()) + float64(t.Nanosecond())/1e9
	default:
		return 0
	}
}

type Descriptor struct {
	Field Field
	Help  string
	Type  Type
}

// Name is the exposed metric name of the descriptor.
func (d Descriptor) Name() string {
	return Namespace + "_" + strings.ToLower(d.Field.String())
}

// Descriptors is the exported schema. Record fields without an entry are not
// exposed.
var Descriptors = []Descriptor{
	{Field: FieldBytes, Help: "Openstack Swift Object Size in bytes.", Type: Gauge},
	{Field: FieldLastModified, Help: "Openstack Swift Object Last Modified Datetime.", Type: Counter},
}
