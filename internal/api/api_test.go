package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hyqhyq3/wmtr/internal/mtr"
	"github.com/hyqhyq3/wmtr/internal/report"
)

var target = netip.MustParseAddr("192.0.2.50")

type directPath struct{}

func (directPath) Probe(ctx context.Context, dst netip.Addr, ttl, size int, timeout time.Duration) (mtr.EchoReply, error) {
	return mtr.EchoReply{Status: mtr.StatusSuccess, RTT: 2 * time.Millisecond, Responder: dst}, nil
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestServer(t *testing.T, cycles int) (*Server, *mtr.Session) {
	t.Helper()
	cfg := mtr.DefaultConfig()
	cfg.Cycles = cycles
	cfg.Interval = 5 * time.Millisecond
	cfg.EnableDNS = false
	sess, err := mtr.NewSession(cfg, directPath{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	srv, err := New("127.0.0.1:0", sess, quietLog())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, sess
}

func TestHops(t *testing.T) {
	srv, sess := newTestServer(t, 2)
	if err := sess.DoTrace(target, false); err != nil {
		t.Fatalf("trace: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hops", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var snap report.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Target != target.String() || len(snap.Hops) != 1 || snap.Hops[0].Sent != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hops?format=xml", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
}

func TestReportAndMetrics(t *testing.T) {
	srv, sess := newTestServer(t, 1)
	if err := sess.DoTrace(target, false); err != nil {
		t.Fatalf("trace: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?order=SR", nil))
	if !strings.Contains(rec.Body.String(), "  1.|-- 192.0.2.50") {
		t.Fatalf("unexpected report:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `wmtr_hops{target="192.0.2.50"} 1`) {
		t.Fatalf("unexpected metrics (%d):\n%s", rec.Code, rec.Body.String())
	}
}

func TestStopTrace(t *testing.T) {
	srv, sess := newTestServer(t, 0)
	if err := sess.DoTrace(target, true); err != nil {
		t.Fatalf("trace: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trace/stop", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trace/stop", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Wait(ctx); err != nil {
		t.Fatalf("trace did not stop: %v", err)
	}
	if sess.IsTracing() {
		t.Fatalf("session still tracing")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
