package mtr

import (
	"math"
	"net/netip"
)

// hop is the statistics record for one TTL. Every field is written either by
// the worker owning the TTL or by the name resolver, always under Session.mu.
type hop struct {
	addr     netip.Addr
	name     string
	resolved bool
	location string

	sent     int
	received int

	last  int
	best  int
	worst int

	avg   float32
	m2    float32
	gmean float32

	jitter int
	javg   float32
	jworst int
	jinta  int
}

// addSample folds one round-trip time, in milliseconds, into the record.
// The arithmetic follows mtr's net.c in single precision so results stay
// comparable with the legacy tools.
func (h *hop) addSample(rtt int) {
	h.jitter = rtt - h.last
	if h.jitter < 0 {
		h.jitter = -h.jitter
	}
	h.last = rtt

	if h.received < 1 {
		h.best, h.worst = rtt, rtt
		h.gmean = float32(rtt)
		h.avg = 0
		h.m2 = 0
		h.jitter, h.jworst, h.jinta = 0, 0, 0
	}

	if rtt < h.best {
		h.best = rtt
	}
	if rtt > h.worst {
		h.worst = rtt
	}
	if h.jitter > h.jworst {
		h.jworst = h.jitter
	}

	h.received++
	n := float32(h.received)

	oldavg := h.avg
	h.avg += (float32(rtt) - oldavg) / n
	h.m2 += (float32(rtt) - oldavg) * (float32(rtt) - h.avg)

	// The jitter mean shares the reply counter with the RTT mean even though
	// the first jitter sample is always zero.
	oldjavg := h.javg
	h.javg += (float32(h.jitter) - oldjavg) / n

	h.jinta += h.jitter - ((h.jinta + 8) >> 4)

	if h.received > 1 {
		h.gmean = pow32(h.gmean, (n-1)/n) * pow32(float32(rtt), 1/n)
	} else {
		h.gmean = float32(rtt)
	}
}

// setAddr stores the responder address unless one is already known.
// It reports whether the address changed.
func (h *hop) setAddr(addr netip.Addr) bool {
	if h.addr.IsValid() || !addr.IsValid() {
		return false
	}
	h.addr = addr
	return true
}

func (h *hop) percent() float32 {
	if h.sent == 0 {
		return 0
	}
	return 100 - 100*float32(h.received)/float32(h.sent)
}

func (h *hop) stdev() float32 {
	if h.received > 1 {
		return float32(math.Sqrt(float64(h.m2 / (float32(h.received) - 1))))
	}
	return 0
}

func (h *hop) displayName() string {
	if h.name != "" {
		return h.name
	}
	if !h.addr.IsValid() {
		return "???"
	}
	return h.addr.String()
}

func pow32(x, y float32) float32 {
	return float32(math.Pow(float64(x), float64(y)))
}
