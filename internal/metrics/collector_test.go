package metrics

import (
	"context"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hyqhyq3/wmtr/internal/mtr"
)

// twoHops answers from a router at ttl 1 and from the target beyond it.
type twoHops struct{}

func (twoHops) Probe(ctx context.Context, target netip.Addr, ttl, size int, timeout time.Duration) (mtr.EchoReply, error) {
	if ttl == 1 {
		return mtr.EchoReply{Status: mtr.StatusTransitExpired, RTT: 4 * time.Millisecond, Responder: netip.MustParseAddr("10.0.0.1")}, nil
	}
	return mtr.EchoReply{Status: mtr.StatusSuccess, RTT: 8 * time.Millisecond, Responder: target}, nil
}

func tracedSession(t *testing.T) *mtr.Session {
	t.Helper()
	cfg := mtr.DefaultConfig()
	cfg.Cycles = 3
	cfg.Interval = time.Millisecond
	cfg.EnableDNS = false
	sess, err := mtr.NewSession(cfg, twoHops{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := sess.DoTrace(netip.MustParseAddr("192.0.2.7"), false); err != nil {
		t.Fatalf("trace: %v", err)
	}
	return sess
}

func TestCollector(t *testing.T) {
	c := NewCollector(tracedSession(t))

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	expected := `
# HELP wmtr_hops Number of hops on the traced path
# TYPE wmtr_hops gauge
wmtr_hops{target="192.0.2.7"} 2
# HELP wmtr_tracing 1 while the trace is running
# TYPE wmtr_tracing gauge
wmtr_tracing{target="192.0.2.7"} 0
# HELP wmtr_hop_info Current responder address and display name of the hop
# TYPE wmtr_hop_info gauge
wmtr_hop_info{address="10.0.0.1",hop="1",name="10.0.0.1",target="192.0.2.7"} 1
wmtr_hop_info{address="192.0.2.7",hop="2",name="192.0.2.7",target="192.0.2.7"} 1
# HELP wmtr_hop_sent_total Echo requests sent to the hop
# TYPE wmtr_hop_sent_total counter
wmtr_hop_sent_total{hop="1",target="192.0.2.7"} 3
wmtr_hop_sent_total{hop="2",target="192.0.2.7"} 3
# HELP wmtr_hop_loss_ratio Packet loss of the hop, 0 to 1
# TYPE wmtr_hop_loss_ratio gauge
wmtr_hop_loss_ratio{hop="1",target="192.0.2.7"} 0
wmtr_hop_loss_ratio{hop="2",target="192.0.2.7"} 0
# HELP wmtr_hop_rtt_avg_milliseconds Mean round-trip time
# TYPE wmtr_hop_rtt_avg_milliseconds gauge
wmtr_hop_rtt_avg_milliseconds{hop="1",target="192.0.2.7"} 4
wmtr_hop_rtt_avg_milliseconds{hop="2",target="192.0.2.7"} 8
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"wmtr_hops", "wmtr_tracing", "wmtr_hop_info", "wmtr_hop_sent_total", "wmtr_hop_loss_ratio", "wmtr_hop_rtt_avg_milliseconds")
	if err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}

	// 2 session gauges plus 12 series for each of the two answering hops
	if n := testutil.CollectAndCount(c); n != 2+2*12 {
		t.Fatalf("expected 26 series, got %d", n)
	}
}

func TestCollector_SkipsRTTWithoutReplies(t *testing.T) {
	cfg := mtr.DefaultConfig()
	sess, err := mtr.NewSession(cfg, twoHops{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	// before any trace the table spans all hops and nobody answered
	c := NewCollector(sess)
	if n := testutil.CollectAndCount(c, "wmtr_hop_rtt_avg_milliseconds"); n != 0 {
		t.Fatalf("expected no rtt series, got %d", n)
	}
	if n := testutil.CollectAndCount(c, "wmtr_hop_loss_ratio"); n != mtr.MaxHops {
		t.Fatalf("expected %d loss series, got %d", mtr.MaxHops, n)
	}
}

// halfLost answers every second probe of every TTL from 10.0.0.<ttl>.
type halfLost struct {
	mu    sync.Mutex
	count map[int]int
}

func (h *halfLost) Probe(ctx context.Context, target netip.Addr, ttl, size int, timeout time.Duration) (mtr.EchoReply, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count[ttl]++
	if h.count[ttl]%2 == 0 {
		return mtr.EchoReply{Status: mtr.StatusNoReply}, nil
	}
	if ttl == 1 {
		return mtr.EchoReply{Status: mtr.StatusTransitExpired, RTT: time.Millisecond, Responder: netip.MustParseAddr("10.0.0.1")}, nil
	}
	return mtr.EchoReply{Status: mtr.StatusSuccess, RTT: time.Millisecond, Responder: target}, nil
}

func TestCollector_LossIsARatio(t *testing.T) {
	cfg := mtr.DefaultConfig()
	cfg.Cycles = 4
	cfg.Interval = time.Millisecond
	cfg.EnableDNS = false
	sess, err := mtr.NewSession(cfg, &halfLost{count: map[int]int{}})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := sess.DoTrace(netip.MustParseAddr("192.0.2.7"), false); err != nil {
		t.Fatalf("trace: %v", err)
	}

	expected := `
# HELP wmtr_hop_loss_ratio Packet loss of the hop, 0 to 1
# TYPE wmtr_hop_loss_ratio gauge
wmtr_hop_loss_ratio{hop="1",target="192.0.2.7"} 0.5
wmtr_hop_loss_ratio{hop="2",target="192.0.2.7"} 0.5
`
	if err := testutil.CollectAndCompare(NewCollector(sess), strings.NewReader(expected), "wmtr_hop_loss_ratio"); err != nil {
		t.Fatalf("unexpected loss: %v", err)
	}
}

// hopSeriesLabels returns the label sets of every series of family name
// belonging to hop 1.
func hopSeriesLabels(t *testing.T, reg *prometheus.Registry, name string) []string {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var out []string
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			var pairs []string
			hop1 := false
			for _, lp := range m.GetLabel() {
				pairs = append(pairs, lp.GetName()+"="+lp.GetValue())
				if lp.GetName() == "hop" && lp.GetValue() == "1" {
					hop1 = true
				}
			}
			if hop1 {
				out = append(out, strings.Join(pairs, ","))
			}
		}
	}
	return out
}

// gatedHop answers the first probe of ttl 1 with host unreachable and holds
// the second one until release is closed; it then reports the router.
type gatedHop struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (g *gatedHop) Probe(ctx context.Context, target netip.Addr, ttl, size int, timeout time.Duration) (mtr.EchoReply, error) {
	if ttl != 1 {
		return mtr.EchoReply{Status: mtr.StatusSuccess, RTT: time.Millisecond, Responder: target}, nil
	}
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		return mtr.EchoReply{Status: mtr.StatusHostUnreachable, RTT: time.Millisecond}, nil
	}
	<-g.release
	return mtr.EchoReply{Status: mtr.StatusTransitExpired, RTT: time.Millisecond, Responder: netip.MustParseAddr("10.0.0.1")}, nil
}

func TestCollector_CounterLabelsStableDuringTrace(t *testing.T) {
	cfg := mtr.DefaultConfig()
	cfg.Cycles = 2
	cfg.Interval = time.Millisecond
	cfg.EnableDNS = false
	transport := &gatedHop{release: make(chan struct{})}
	sess, err := mtr.NewSession(cfg, transport)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(sess))

	if err := sess.DoTrace(netip.MustParseAddr("192.0.2.7"), true); err != nil {
		t.Fatalf("trace: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for sess.Xmit(0) < 1 {
		if time.Now().After(deadline) {
			close(transport.release)
			t.Fatalf("first probe of hop 1 was never recorded")
		}
		time.Sleep(time.Millisecond)
	}

	// hop 1 is named after the ICMP error while its second probe is pending
	before := hopSeriesLabels(t, reg, "wmtr_hop_sent_total")
	infoBefore := hopSeriesLabels(t, reg, "wmtr_hop_info")

	close(transport.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	after := hopSeriesLabels(t, reg, "wmtr_hop_sent_total")
	infoAfter := hopSeriesLabels(t, reg, "wmtr_hop_info")

	if len(before) != 1 || len(after) != 1 || before[0] != after[0] {
		t.Fatalf("sent counter changed identity: before=%v after=%v", before, after)
	}
	if len(infoBefore) != 1 || len(infoAfter) != 1 || infoBefore[0] == infoAfter[0] {
		t.Fatalf("hop info must follow the hop identity: before=%v after=%v", infoBefore, infoAfter)
	}
}
