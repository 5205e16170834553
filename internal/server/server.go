package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

type MetricServer struct {
	server *http.Server
}

func NewMetricServer(handler http.Handler, addr string) *MetricServer {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricServer := &MetricServer{
		server: server,
	}

	return metricServer
}

// Serve serves on ln until ctx is done, then shuts down gracefully so that
// in-flight scrapes still get their response.
func (ms *MetricServer) Serve(ctx context.Context, ln net.Listener) error {
	serverErr := make(chan error, 1)
	go func() {
		if err := ms.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ms.server.Shutdown(shutdownCtx)
		return <-serverErr
	}
}
