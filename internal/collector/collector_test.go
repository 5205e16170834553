package collector

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bigouden/openstack-swift-exporter/internal/objectstore"
)

// fakeSource yields pages of records, then err if set.
type fakeSource struct {
	pages   [][]objectstore.ObjectRecord
	err     error
	calls   atomic.Int32
	block   chan struct{}
	gotOpts objectstore.ListOptions
}

func (f *fakeSource) Objects(ctx context.Context, container string, opts objectstore.ListOptions) iter.Seq2[objectstore.ObjectRecord, error] {
	f.calls.Add(1)
	f.gotOpts = opts
	return func(yield func(objectstore.ObjectRecord, error) bool) {
		if f.block != nil {
			select {
			case <-f.block:
			case <-ctx.Done():
				yield(objectstore.ObjectRecord{}, ctx.Err())
				return
			}
		}
		for _, page := range f.pages {
			for _, r := range page {
				if !yield(r, nil) {
					return
				}
			}
		}
		if f.err != nil {
			yield(objectstore.ObjectRecord{}, f.err)
		}
	}
}

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestContainerCollector_Collect(t *testing.T) {
	source := &fakeSource{pages: [][]objectstore.ObjectRecord{
		{{Name: "a.jpg", Bytes: 2048, LastModified: jan1}},
		{{Name: "b.jpg", Bytes: 1, LastModified: jan1}},
	}}
	c := NewContainerCollector(source, Options{
		Job:       "swift",
		Container: "media",
		List:      objectstore.ListOptions{Prefix: "p/", Delimiter: "/"},
	})

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 4)
	assert.Equal(t, objectstore.ListOptions{Prefix: "p/", Delimiter: "/"}, source.gotOpts)

	assert.Equal(t, "openstack_swift_object_bytes", samples[0].Name)
	assert.Equal(t, 2048.0, samples[0].Value)
	assert.Equal(t, map[string]string{"job": "swift", "container": "media", "name": "a.jpg"}, samples[0].Labels)
	assert.Equal(t, "b.jpg", samples[3].Labels["name"])
}

func TestContainerCollector_EmptyContainer(t *testing.T) {
	c := NewContainerCollector(&fakeSource{}, Options{Job: "swift", Container: "media"})

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestContainerCollector_PageFailure(t *testing.T) {
	pageErr := &objectstore.Error{Kind: objectstore.KindService, Err: errors.New("503 Service Unavailable")}
	source := &fakeSource{
		pages: [][]objectstore.ObjectRecord{{{Name: "a.jpg", Bytes: 1, LastModified: jan1}}},
		err:   pageErr,
	}
	c := NewContainerCollector(source, Options{Job: "swift", Container: "media"})

	samples, err := c.Collect(context.Background())
	assert.Nil(t, samples, "no partial result")

	var lerr *ListingError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "media", lerr.Container)
	assert.Equal(t, objectstore.KindService, lerr.Kind)
	assert.ErrorIs(t, err, pageErr)
}

func TestContainerCollector_CanceledScrape(t *testing.T) {
	source := &fakeSource{block: make(chan struct{})}
	c := NewContainerCollector(source, Options{Job: "swift", Container: "media"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Collect(ctx)
	require.ErrorIs(t, err, context.Canceled)
	var lerr *ListingError
	assert.False(t, errors.As(err, &lerr))
}

func TestContainerCollector_RelistsEveryTime(t *testing.T) {
	source := &fakeSource{}
	c := NewContainerCollector(source, Options{Job: "swift", Container: "media"})

	for range 3 {
		_, err := c.Collect(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), source.calls.Load())
}

func TestContainerCollector_Coalesce(t *testing.T) {
	source := &fakeSource{
		pages: [][]objectstore.ObjectRecord{{{Name: "a.jpg", Bytes: 1, LastModified: jan1}}},
		block: make(chan struct{}),
	}
	c := NewContainerCollector(source, Options{Job: "swift", Container: "media", Coalesce: true})

	var (
		wg      sync.WaitGroup
		results = make([]int, 4)
	)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			samples, err := c.Collect(context.Background())
			assert.NoError(t, err)
			results[i] = len(samples)
		}()
	}
	// let every caller join the in-flight listing before releasing it
	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(source.block)
	wg.Wait()

	assert.Equal(t, []int{2, 2, 2, 2}, results)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestContainerCollector_CoalesceSurvivesLeaderDisconnect(t *testing.T) {
	source := &fakeSource{
		pages: [][]objectstore.ObjectRecord{{{Name: "a.jpg", Bytes: 1, LastModified: jan1}}},
		block: make(chan struct{}),
	}
	c := NewContainerCollector(source, Options{Job: "swift", Container: "media", Coalesce: true})

	leaderCtx, disconnect := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Collect(leaderCtx)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		samples int
		err     error
	}
	follower := make(chan result, 1)
	go func() {
		samples, err := c.Collect(context.Background())
		follower <- result{len(samples), err}
	}()
	time.Sleep(50 * time.Millisecond)

	disconnect()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(source.block)
	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, 2, got.samples)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestContainerCollector_CoalesceKeepsDeadline(t *testing.T) {
	source := &fakeSource{block: make(chan struct{})}
	defer close(source.block)
	c := NewContainerCollector(source, Options{Job: "swift", Container: "media", Coalesce: true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Collect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	ok := NewContainerCollector(&fakeSource{pages: [][]objectstore.ObjectRecord{
		{{Name: "a", LastModified: jan1}, {Name: "b", LastModified: jan1}},
	}}, Options{Container: "media", Metrics: m})
	_, err := ok.Collect(context.Background())
	require.NoError(t, err)

	failing := NewContainerCollector(&fakeSource{
		err: &objectstore.Error{Kind: objectstore.KindConnection, Err: errors.New("refused")},
	}, Options{Container: "media", Metrics: m})
	_, err = failing.Collect(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.listings.WithLabelValues(resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.listings.WithLabelValues("connection")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.objects.WithLabelValues("media")))

	var h dto.Metric
	require.NoError(t, m.duration.Write(&h))
	assert.Equal(t, uint64(2), h.GetHistogram().GetSampleCount())
}
