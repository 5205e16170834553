package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Bigouden/openstack-swift-exporter/internal/metric"
	"github.com/Bigouden/openstack-swift-exporter/internal/objectstore"
)

type Options struct {
	// Job is the value of the job label.
	Job       string
	Container string
	List      objectstore.ListOptions
	// Coalesce makes concurrent collections share one in-flight listing.
	Coalesce bool
	Metrics  *Metrics
	Logger   *slog.Logger
}

// ContainerCollector lists one container on every collection and exposes
// its objects. It keeps no state between collections.
type ContainerCollector struct {
	source  objectstore.Source
	opts    Options
	labels  map[string]string
	logger  *slog.Logger
	flights *singleflight.Group
}

func NewContainerCollector(source objectstore.Source, opts Options) *ContainerCollector {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &ContainerCollector{
		source: source,
		opts:   opts,
		labels: buildLabels(opts.Job, opts.Container),
		logger: logger.With("container", opts.Container),
	}
	if opts.Coalesce {
		c.flights = &singleflight.Group{}
	}
	return c
}

// Collect lists the whole container and translates every object. Any
// listing failure aborts the collection with a *ListingError; no partial
// result is returned.
//
// With coalescing, the shared listing ignores the cancellation of the caller
// that started it but keeps its deadline, and each caller stops waiting when
// its own context is done.
func (c *ContainerCollector) Collect(ctx context.Context) ([]metric.Sample, error) {
	if c.flights == nil {
		return c.collect(ctx)
	}
	ch := c.flights.DoChan(c.opts.Container, func() (any, error) {
		flightCtx, cancel := detach(ctx)
		defer cancel()
		return c.collect(flightCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("shared in-flight listing")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]metric.Sample), nil
	}
}

// detach returns a context that outlives the cancellation of ctx but not its
// deadline.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return context.WithCancel(detached)
}

func (c *ContainerCollector) collect(ctx context.Context) ([]metric.Sample, error) {
	start := time.Now()
	debug := c.logger.Enabled(ctx, slog.LevelDebug)

	var (
		samples []metric.Sample
		records []objectstore.ObjectRecord
		count   int
	)
	for record, err := range c.source.Objects(ctx, c.opts.Container, c.opts.List) {
		if err != nil {
			err = c.wrap(ctx, err)
			c.opts.Metrics.observe(c.opts.Container, count, time.Since(start), err)
			return nil, err
		}
		count++
		if debug {
			records = append(records, record)
		}
		samples = append(samples, metric.Translate(record, c.labels)...)
	}
	c.opts.Metrics.observe(c.opts.Container, count, time.Since(start), nil)

	if debug {
		c.logger.Debug("listed objects", "objects", records)
		c.logger.Debug("translated samples", "samples", samples)
	}
	c.logger.Info("Retrieved objects", "count", count, "duration", time.Since(start))
	return samples, nil
}

// wrap tags a source failure. A cancelled scrape is returned as the context
// error so it is not mistaken for a listing failure.
func (c *ContainerCollector) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	kind := objectstore.KindOf(err)
	c.logger.Error("container listing failed", "kind", kind, "err", err)
	return &ListingError{Container: c.opts.Container, Kind: kind, Err: err}
}

func kindOf(err error) objectstore.Kind {
	var lerr *ListingError
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return objectstore.KindCanceled
}
