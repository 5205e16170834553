package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Gatherer collects metric families for one scrape.
type Gatherer interface {
	GatherContext(ctx context.Context) ([]*dto.MetricFamily, error)
}

type HandlerOpts struct {
	// DisableCompression serves uncompressed bodies whatever the client accepts.
	DisableCompression bool
	EnableOpenMetrics  bool
	// Timeout bounds a single gather; zero means no limit.
	Timeout time.Duration
	// Additional families are appended after the gatherer's, e.g. the
	// exporter's own metrics.
	Additional prometheus.Gatherer
	// OnGatherError is called after the error response has been written.
	OnGatherError func(error)
	Logger        *slog.Logger
}

type metricsHandler struct {
	gatherer Gatherer
	opts     HandlerOpts
	logger   *slog.Logger
}

// MetricsHandler serves the gatherer's families with content negotiation.
// The response is fully rendered before being written, so a failing scrape
// always ends in a 500 and never in a truncated 200.
func MetricsHandler(g Gatherer, opts HandlerOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &metricsHandler{gatherer: g, opts: opts, logger: logger}
}

func (h *metricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}

	mfs, err := h.gather(ctx)
	if err != nil {
		h.logger.Error("error gathering metrics", "err", err)
		httpError(w, fmt.Errorf("error gathering metrics: %w", err))
		if h.opts.OnGatherError != nil {
			h.opts.OnGatherError(err)
		}
		return
	}
	mfs = filterFamilies(mfs, r.URL.Query()["name[]"])

	format := negotiateFormat(r.Header, h.opts.EnableOpenMetrics)
	var body bytes.Buffer
	if err := Encode(&body, mfs, format); err != nil {
		h.logger.Error("error encoding metrics", "format", format, "err", err)
		httpError(w, fmt.Errorf("error encoding metrics: %w", err))
		return
	}

	encoding := Identity
	if !h.opts.DisableCompression {
		encoding = negotiateEncoding(r.Header.Get("Accept-Encoding"))
	}
	payload, err := compress(body.Bytes(), encoding)
	if err != nil {
		h.logger.Error("error compressing metrics", "encoding", encoding, "err", err)
		httpError(w, fmt.Errorf("error compressing metrics: %w", err))
		return
	}

	header := w.Header()
	header.Set("Content-Type", string(format))
	header.Set("Content-Length", strconv.Itoa(len(payload)))
	header.Add("Vary", "Accept-Encoding")
	if encoding != Identity {
		header.Set("Content-Encoding", string(encoding))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		h.logger.Debug("error writing metrics response", "err", err)
	}
}

func (h *metricsHandler) gather(ctx context.Context) ([]*dto.MetricFamily, error) {
	mfs, err := h.gatherer.GatherContext(ctx)
	if err != nil {
		return nil, err
	}
	if h.opts.Additional != nil {
		extra, err := h.opts.Additional.Gather()
		if err != nil {
			return nil, err
		}
		mfs = append(mfs, extra...)
	}
	return mfs, nil
}

// Encode writes mfs in format.
func Encode(w io.Writer, mfs []*dto.MetricFamily, format expfmt.Format) error {
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		return closer.Close()
	}
	return nil
}

func filterFamilies(mfs []*dto.MetricFamily, names []string) []*dto.MetricFamily {
	if len(names) == 0 {
		return mfs
	}
	return slices.DeleteFunc(mfs, func(mf *dto.MetricFamily) bool {
		return !slices.Contains(names, mf.GetName())
	})
}

func compress(body []byte, encoding Encoding) ([]byte, error) {
	var (
		out bytes.Buffer
		zw  io.WriteCloser
	)
	switch encoding {
	case Gzip:
		zw = gzip.NewWriter(&out)
	case Zstd:
		enc, err := zstd.NewWriter(&out, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, err
		}
		zw = enc
	default:
		return body, nil
	}
	if _, err := zw.Write(body); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func httpError(w http.ResponseWriter, err error) {
	http.Error(w, "An error has occurred while serving metrics:\n\n"+err.Error(), http.StatusInternalServerError)
}
