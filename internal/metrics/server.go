package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"firestige.xyz/udptrain/internal/log"
)

// DefaultPath is served when no path is configured.
const DefaultPath = "/metrics"

// Server exposes the default registry over HTTP while a probe run or a
// capture is in progress.
type Server struct {
	listen string
	path   string

	http *http.Server
	ln   net.Listener
	done chan struct{}
}

func NewServer(listen, path string) *Server {
	if path == "" {
		path = DefaultPath
	}
	return &Server{listen: listen, path: path}
}

// Start binds synchronously, so a port conflict is reported to the caller,
// then serves in a goroutine until Stop.
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.listen)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog: errorLogger{},
	}))
	s.ln = ln
	s.done = make(chan struct{})
	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	log.GetLogger().WithField("addr", ln.Addr().String()+s.path).Info("metrics endpoint listening")
	go func() {
		defer close(s.done)
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.GetLogger().WithError(err).Error("metrics endpoint stopped")
		}
	}()
	return nil
}

// Addr is the bound address once started, the configured one before.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.listen
	}
	return s.ln.Addr().String()
}

// Stop shuts the endpoint down and waits for the serving goroutine.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	<-s.done
	return nil
}

// errorLogger routes promhttp encoding errors to the process logger.
type errorLogger struct{}

func (errorLogger) Println(v ...interface{}) {
	log.GetLogger().Error(v...)
}
