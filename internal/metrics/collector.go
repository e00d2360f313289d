package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyqhyq3/wmtr/internal/mtr"
	"github.com/hyqhyq3/wmtr/internal/report"
)

// Per-hop series are keyed by target and TTL only. Address and name change
// while a trace runs, so they live on wmtr_hop_info.
var hopLabels = []string{"target", "hop"}

func hopDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc("wmtr_hop_"+name, help, hopLabels, nil)
}

var (
	descSent     = hopDesc("sent_total", "Echo requests sent to the hop")
	descReceived = hopDesc("received_total", "Replies received from the hop")
	descInfo     = prometheus.NewDesc("wmtr_hop_info", "Current responder address and display name of the hop", []string{"target", "hop", "address", "name"}, nil)
	descLoss     = hopDesc("loss_ratio", "Packet loss of the hop, 0 to 1")
	descLast     = hopDesc("rtt_last_milliseconds", "Newest round-trip time")
	descBest     = hopDesc("rtt_best_milliseconds", "Best round-trip time")
	descWorst    = hopDesc("rtt_worst_milliseconds", "Worst round-trip time")
	descAvg      = hopDesc("rtt_avg_milliseconds", "Mean round-trip time")
	descStDev    = hopDesc("rtt_stddev_milliseconds", "Standard deviation of the round-trip time")
	descGMean    = hopDesc("rtt_gmean_milliseconds", "Geometric mean of the round-trip time")
	descJAvg     = hopDesc("jitter_avg_milliseconds", "Mean jitter between consecutive replies")
	descJWorst   = hopDesc("jitter_worst_milliseconds", "Worst jitter between consecutive replies")

	descHops    = prometheus.NewDesc("wmtr_hops", "Number of hops on the traced path", []string{"target"}, nil)
	descTracing = prometheus.NewDesc("wmtr_tracing", "1 while the trace is running", []string{"target"}, nil)
)

// Collector exposes the hop table of a session. Values are read through the
// locking getters on every scrape, so it can be registered while tracing.
type Collector struct {
	sess *mtr.Session
}

func NewCollector(sess *mtr.Session) *Collector {
	return &Collector{sess: sess}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descInfo, descSent, descReceived, descLoss, descLast, descBest, descWorst,
		descAvg, descStDev, descGMean, descJAvg, descJWorst, descHops, descTracing,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := report.TakeSnapshot(c.sess, report.Safe)

	tracing := 0.0
	if snap.Tracing {
		tracing = 1
	}
	ch <- prometheus.MustNewConstMetric(descHops, prometheus.GaugeValue, float64(len(snap.Hops)), snap.Target)
	ch <- prometheus.MustNewConstMetric(descTracing, prometheus.GaugeValue, tracing, snap.Target)

	for _, h := range snap.Hops {
		hop := strconv.Itoa(h.TTL)
		labels := []string{snap.Target, hop}
		ch <- prometheus.MustNewConstMetric(descInfo, prometheus.GaugeValue, 1, snap.Target, hop, h.Address, h.Name)
		ch <- prometheus.MustNewConstMetric(descSent, prometheus.CounterValue, float64(h.Sent), labels...)
		ch <- prometheus.MustNewConstMetric(descReceived, prometheus.CounterValue, float64(h.Received), labels...)
		ch <- prometheus.MustNewConstMetric(descLoss, prometheus.GaugeValue, float64(h.Loss)/100, labels...)
		if h.Received == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(descLast, prometheus.GaugeValue, float64(h.Last), labels...)
		ch <- prometheus.MustNewConstMetric(descBest, prometheus.GaugeValue, float64(h.Best), labels...)
		ch <- prometheus.MustNewConstMetric(descWorst, prometheus.GaugeValue, float64(h.Worst), labels...)
		ch <- prometheus.MustNewConstMetric(descAvg, prometheus.GaugeValue, float64(h.Avg), labels...)
		ch <- prometheus.MustNewConstMetric(descStDev, prometheus.GaugeValue, float64(h.StDev), labels...)
		ch <- prometheus.MustNewConstMetric(descGMean, prometheus.GaugeValue, float64(h.GMean), labels...)
		ch <- prometheus.MustNewConstMetric(descJAvg, prometheus.GaugeValue, float64(h.JAvg), labels...)
		ch <- prometheus.MustNewConstMetric(descJWorst, prometheus.GaugeValue, float64(h.JWorst), labels...)
	}
}
