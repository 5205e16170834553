package collector

import (
	"fmt"

	"github.com/Bigouden/openstack-swift-exporter/internal/objectstore"
)

// ListingError reports that a container listing failed during a scrape. It
// is never retried here; callers decide whether it is fatal.
type ListingError struct {
	Container string
	Kind      objectstore.Kind
	Err       error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("list container %s: %v", e.Container, e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}
