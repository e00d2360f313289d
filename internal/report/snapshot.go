package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyqhyq3/wmtr/internal/mtr"
)

type Snapshot struct {
	Target  string        `json:"target" yaml:"target"`
	Tracing bool          `json:"tracing" yaml:"tracing"`
	Cycles  int           `json:"cycles" yaml:"cycles"`
	Hops    []HopSnapshot `json:"hops" yaml:"hops"`
}

type HopSnapshot struct {
	TTL      int     `json:"ttl" yaml:"ttl"`
	Address  string  `json:"address,omitempty" yaml:"address,omitempty"`
	Name     string  `json:"name" yaml:"name"`
	Location string  `json:"location,omitempty" yaml:"location,omitempty"`
	Sent     int     `json:"sent" yaml:"sent"`
	Received int     `json:"received" yaml:"received"`
	Dropped  int     `json:"dropped" yaml:"dropped"`
	Loss     float32 `json:"loss" yaml:"loss"`
	Last     int     `json:"last" yaml:"last"`
	Best     int     `json:"best" yaml:"best"`
	Worst    int     `json:"worst" yaml:"worst"`
	Avg      float32 `json:"avg" yaml:"avg"`
	StDev    float32 `json:"stdev" yaml:"stdev"`
	GMean    float32 `json:"gmean" yaml:"gmean"`
	Jitter   int     `json:"jitter" yaml:"jitter"`
	JAvg     float32 `json:"javg" yaml:"javg"`
	JWorst   int     `json:"jworst" yaml:"jworst"`
	JInta    int     `json:"jinta" yaml:"jinta"`
}

// TakeSnapshot copies the hop table up to Max. In Safe mode every value is read
// under its own lock, so received is read before sent to keep
// received <= sent in the copy.
func TakeSnapshot(sess *mtr.Session, mode Mode) *Snapshot {
	snap := &Snapshot{
		Target:  sess.Target().String(),
		Tracing: sess.IsTracing(),
		Cycles:  sess.Config().Cycles,
	}

	n := maxHops(sess, mode)
	snap.Hops = make([]HopSnapshot, 0, n)
	for at := 0; at < n; at++ {
		h := HopSnapshot{TTL: at + 1, Name: hopName(sess, at, mode)}
		if mode == Unsafe {
			h.Received = sess.ReturnedUnsafe(at)
			h.Sent = sess.XmitUnsafe(at)
			h.Loss = sess.PercentUnsafe(at)
			h.Last, h.Best, h.Worst = sess.LastUnsafe(at), sess.BestUnsafe(at), sess.WorstUnsafe(at)
			h.Avg, h.StDev, h.GMean = sess.AvgUnsafe(at), sess.StDevUnsafe(at), sess.GMeanUnsafe(at)
			h.Jitter, h.JAvg = sess.JitterUnsafe(at), sess.JAvgUnsafe(at)
			h.JWorst, h.JInta = sess.JWorstUnsafe(at), sess.JIntaUnsafe(at)
			h.Location = sess.LocationUnsafe(at)
			if addr := sess.AddrUnsafe(at); addr.IsValid() {
				h.Address = addr.String()
			}
		} else {
			h.Received = sess.Returned(at)
			h.Sent = sess.Xmit(at)
			h.Loss = sess.Percent(at)
			h.Last, h.Best, h.Worst = sess.Last(at), sess.Best(at), sess.Worst(at)
			h.Avg, h.StDev, h.GMean = sess.Avg(at), sess.StDev(at), sess.GMean(at)
			h.Jitter, h.JAvg = sess.Jitter(at), sess.JAvg(at)
			h.JWorst, h.JInta = sess.JWorst(at), sess.JInta(at)
			h.Location = sess.Location(at)
			if addr := sess.Addr(at); addr.IsValid() {
				h.Address = addr.String()
			}
		}
		h.Dropped = h.Sent - h.Received
		snap.Hops = append(snap.Hops, h)
	}
	return snap
}

// WriteSnapshot encodes snap as "json" or "yaml".
func WriteSnapshot(w io.Writer, snap *Snapshot, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported snapshot format %q", format)
	}
}
