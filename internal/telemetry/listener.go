package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Listener serves /metrics, /healthz and /readyz on a side port. The
// request channel itself never goes over the network.
type Listener struct {
	logger     *slog.Logger
	httpServer *http.Server
	ln         net.Listener
	ready      atomic.Bool
	wg         sync.WaitGroup
}

// Listen binds addr and starts serving in the background. metrics may be
// nil, in which case /metrics is not registered.
func Listen(addr string, metrics http.Handler, logger *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	l := &Listener{logger: logger, ln: ln}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", l.handleHealth)
	mux.HandleFunc("/readyz", l.handleReady)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	l.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("telemetry listener started", slog.String("addr", ln.Addr().String()))
	return l, nil
}

// Addr is the bound address, useful when addr used port 0.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// SetReady flips the /readyz answer.
func (l *Listener) SetReady(ready bool) {
	if l == nil {
		return
	}
	l.ready.Store(ready)
}

func (l *Listener) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	err := l.httpServer.Shutdown(ctx)
	l.wg.Wait()
	return err
}

func (l *Listener) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (l *Listener) handleReady(w http.ResponseWriter, _ *http.Request) {
	if l.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
