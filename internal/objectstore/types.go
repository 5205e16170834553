package objectstore

import (
	"context"
	"iter"
	"time"
)

// ObjectRecord is one object of a container listing.
type ObjectRecord struct {
	Name         string
	Bytes        int64
	LastModified time.Time
}

// ListOptions are applied by the source, never re-filtered by callers.
type ListOptions struct {
	Prefix    string
	Delimiter string
}

// Source produces the listing of a container. The returned sequence is lazy,
// finite and can be consumed only once. A failure is yielded as the last
// element with a non-nil error.
type Source interface {
	Objects(ctx context.Context, container string, opts ListOptions) iter.Seq2[ObjectRecord, error]
}
