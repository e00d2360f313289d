package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hyqhyq3/wmtr/internal/metrics"
	"github.com/hyqhyq3/wmtr/internal/mtr"
	"github.com/hyqhyq3/wmtr/internal/report"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Server publishes a running session over HTTP.
type Server struct {
	addr string
	sess *mtr.Session
	reg  *prometheus.Registry
	log  *logrus.Entry
	srv  *http.Server
}

func New(addr string, sess *mtr.Session, log *logrus.Entry) (*Server, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector(sess)); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{addr: addr, sess: sess, reg: reg, log: log.WithField("component", "api")}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Router returns the HTTP routes of the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handleReport)
	r.Get("/hops", s.handleHops)
	r.Post("/trace/stop", s.handleStop)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.log.WithField("addr", ln.Addr().String()).Info("api listening")

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
		}).Debug("request served")
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	opts := report.Options{
		Mode:   report.Safe,
		Fields: r.URL.Query().Get("order"),
		Wide:   r.URL.Query().Has("wide"),
	}
	if err := report.Write(w, s.sess, opts); err != nil {
		s.log.WithError(err).Warn("writing report failed")
	}
}

func (s *Server) handleHops(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json":
		format = "json"
		w.Header().Set("Content-Type", "application/json")
	case "yaml":
		w.Header().Set("Content-Type", "application/yaml")
	default:
		http.Error(w, "unsupported format", http.StatusBadRequest)
		return
	}
	if err := report.WriteSnapshot(w, report.TakeSnapshot(s.sess, report.Safe), format); err != nil {
		s.log.WithError(err).Warn("writing snapshot failed")
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.sess.StopTrace()
	s.log.Info("trace stop requested over api")
	w.WriteHeader(http.StatusAccepted)
}
