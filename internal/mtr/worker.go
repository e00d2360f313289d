package mtr

import (
	"context"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"
)

// traceWorker probes a single TTL until its cycles are used up, the trace is
// stopped, or the TTL turns out to lie beyond the end of the path.
func (s *Session) traceWorker(ttl int, target netip.Addr, gen uint64, stop <-chan struct{}, log *logrus.Entry) {
	log = log.WithField("ttl", ttl)
	log.Debug("worker started")
	defer log.Debug("worker stopped")

	for cycle := 0; s.cfg.Cycles == 0 || cycle < s.cfg.Cycles; cycle++ {
		if !s.shouldProbe(ttl) {
			return
		}

		reply, err := s.transport.Probe(context.Background(), target, ttl, s.cfg.PacketSize, s.cfg.Timeout)
		if err != nil {
			log.WithError(err).Warn("probe failed")
			s.record(ttl-1, EchoReply{Status: StatusNoReply}, gen)
			s.pace(stop, s.cfg.Interval)
			continue
		}

		s.record(ttl-1, reply, gen)
		if reply.Status.Replied() && reply.RTT < s.cfg.Interval {
			s.pace(stop, s.cfg.Interval-reply.RTT)
		}
	}
}

func (s *Session) shouldProbe(ttl int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracing && ttl <= s.maxUnsafe()
}

func (s *Session) pace(stop <-chan struct{}, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-stop:
	}
}

// record applies one probe outcome to hop at. The first concrete address
// seen for a hop starts the name resolver for it.
func (s *Session) record(at int, reply EchoReply, gen uint64) {
	var resolve netip.Addr

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	h := &s.hops[at]
	h.sent++
	switch {
	case !reply.Status.Replied():
	case reply.Status.Reached():
		h.addSample(reply.RTTMillis())
		if h.setAddr(reply.Responder) {
			resolve = reply.Responder
		}
	default:
		h.name = reply.Status.Description()
	}
	s.mu.Unlock()

	if resolve.IsValid() && s.names != nil {
		go s.resolveHop(at, resolve, gen)
	}
}

func (s *Session) resolveHop(at int, addr netip.Addr, gen uint64) {
	log := s.log.WithFields(logrus.Fields{"hop": at + 1, "addr": addr.String()})
	log.Debug("resolving hop")

	var name string
	if s.cfg.EnableDNS {
		name = s.names.Name(context.Background(), addr)
	}
	location := s.names.Location(addr)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		log.Debug("dropping resolution for a finished trace")
		return
	}
	h := &s.hops[at]
	if name != "" && !h.resolved {
		h.name = name
		h.resolved = true
	}
	if location != "" {
		h.location = location
	}
}
