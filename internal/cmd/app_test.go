package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bigouden/openstack-swift-exporter/internal/collector"
	"github.com/Bigouden/openstack-swift-exporter/internal/objectstore"
)

type fakeSource struct {
	records []objectstore.ObjectRecord
	err     error
}

func (f fakeSource) Objects(context.Context, string, objectstore.ListOptions) iter.Seq2[objectstore.ObjectRecord, error] {
	return func(yield func(objectstore.ObjectRecord, error) bool) {
		for _, r := range f.records {
			if !yield(r, nil) {
				return
			}
		}
		if f.err != nil {
			yield(objectstore.ObjectRecord{}, f.err)
		}
	}
}

var oneObject = []objectstore.ObjectRecord{{
	Name:         "a.jpg",
	Bytes:        2048,
	LastModified: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
}}

func testConfig() Config {
	return Config{
		Name:          DefaultName,
		Container:     "media",
		LogLevel:      "INFO",
		ScrapeTimeout: 5 * time.Second,
		FailFast:      true,
		location:      time.UTC,
	}
}

type running struct {
	url  string
	done chan error
	stop context.CancelFunc
}

func runApp(t *testing.T, a *app) running {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := running{url: "http://" + ln.Addr().String(), done: make(chan error, 1), stop: cancel}
	go func() { r.done <- a.serve(ctx, ln) }()
	t.Cleanup(cancel)
	return r
}

func (r running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("exporter did not stop")
		return nil
	}
}

func scrape(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServe_ScrapeAndShutdown(t *testing.T) {
	r := runApp(t, newApp(testConfig(), fakeSource{records: oneObject}, io.Discard))

	code, body := scrape(t, r.url)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `openstack_swift_object_bytes{container="media",job="openstack-swift-exporter",name="a.jpg"} 2048`)
	assert.NotContains(t, body, "go_goroutines")

	r.stop()
	assert.NoError(t, r.wait(t))
}

func TestServe_FailFastExitsOnListingError(t *testing.T) {
	source := fakeSource{err: &objectstore.Error{Kind: objectstore.KindService, Err: errors.New("503")}}
	r := runApp(t, newApp(testConfig(), source, io.Discard))

	code, _ := scrape(t, r.url)
	assert.Equal(t, http.StatusInternalServerError, code)

	err := r.wait(t)
	var lerr *collector.ListingError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, objectstore.KindService, lerr.Kind)
}

func TestServe_WithoutFailFastKeepsServing(t *testing.T) {
	cfg := testConfig()
	cfg.FailFast = false
	source := fakeSource{err: &objectstore.Error{Kind: objectstore.KindConnection, Err: errors.New("refused")}}
	r := runApp(t, newApp(cfg, source, io.Discard))

	for range 2 {
		code, _ := scrape(t, r.url)
		assert.Equal(t, http.StatusInternalServerError, code)
	}

	r.stop()
	assert.NoError(t, r.wait(t))
}

func TestServe_ExporterMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.ExporterMetrics = true
	r := runApp(t, newApp(cfg, fakeSource{records: oneObject}, io.Discard))

	_, _ = scrape(t, r.url)
	code, body := scrape(t, r.url)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, `openstack_swift_exporter_listings_total{result="success"} 2`)
	assert.Contains(t, body, `openstack_swift_exporter_listed_objects{container="media"} 1`)
	assert.Contains(t, body, `openstack_swift_exporter_scrapes_total{code="200"} 1`)
}

func TestCollectOnce(t *testing.T) {
	var out bytes.Buffer
	a := newApp(testConfig(), fakeSource{records: oneObject}, io.Discard)
	require.NoError(t, a.collectOnce(context.Background(), &out))

	assert.Contains(t, out.String(), "# HELP openstack_swift_object_bytes Openstack Swift Object Size in bytes.\n")
	assert.Contains(t, out.String(), `openstack_swift_object_last_modified{container="media",job="openstack-swift-exporter",name="a.jpg"} 1.7040672e+09`)
}

func TestCollectOnce_ListingError(t *testing.T) {
	a := newApp(testConfig(), fakeSource{err: errors.New("boom")}, io.Discard)
	var lerr *collector.ListingError
	assert.ErrorAs(t, a.collectOnce(context.Background(), io.Discard), &lerr)
}

func TestNewApp_InvalidLogLevelFallsBackToInfo(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "LOUD"
	var logs bytes.Buffer
	a := newApp(cfg, fakeSource{}, &logs)

	assert.Equal(t, slog.LevelInfo, a.level.Level())
	assert.Contains(t, logs.String(), "invalid log level")
}

func TestReloadEnvFile(t *testing.T) {
	a := newApp(testConfig(), fakeSource{}, io.Discard)

	a.reloadEnvFile(map[string]string{envLogLevel: "DEBUG"})
	assert.Equal(t, slog.LevelDebug, a.level.Level())

	a.reloadEnvFile(map[string]string{envLogLevel: "nonsense"})
	assert.Equal(t, slog.LevelDebug, a.level.Level())

	a.config.logLevelPinned = true
	a.reloadEnvFile(map[string]string{envLogLevel: "ERROR"})
	assert.Equal(t, slog.LevelDebug, a.level.Level())
}

func TestWatchEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.env")
	require.NoError(t, os.WriteFile(path, []byte("OPENSTACK_SWIFT_EXPORTER_LOGLEVEL=INFO\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan map[string]string, 4)
	done := make(chan error, 1)
	go func() {
		done <- watchEnvFile(ctx, path, func(values map[string]string) { changes <- values })
	}()

	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("OPENSTACK_SWIFT_EXPORTER_LOGLEVEL=DEBUG\n"), 0o600); err != nil {
			return false
		}
		select {
		case values := <-changes:
			return values[envLogLevel] == "DEBUG"
		case <-time.After(500 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
