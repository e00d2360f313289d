package mtr

import "net/netip"

// Hops are indexed from 0; an index outside [0, MaxHops) panics.

// Addr returns the responder address of hop at, invalid until the hop answered.
func (s *Session) Addr(at int) netip.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.AddrUnsafe(at)
}

func (s *Session) AddrUnsafe(at int) netip.Addr {
	h := &s.hops[at]
	return h.addr
}

func (s *Session) Best(at int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.BestUnsafe(at)
}

func (s *Session) BestUnsafe(at int) int {
	h := &s.hops[at]
	return h.best
}

func (s *Session) Worst(at int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.WorstUnsafe(at)
}

func (s *Session) WorstUnsafe(at int) int {
	h := &s.hops[at]
	return h.worst
}

func (s *Session) Avg(at int) float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.AvgUnsafe(at)
}

func (s *Session) AvgUnsafe(at int) float32 {
	h := &s.hops[at]
	return h.avg
}

// Percent returns the loss ratio of hop at in percent.
func (s *Session) Percent(at int) float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.PercentUnsafe(at)
}

func (s *Session) PercentUnsafe(at int) float32 {
	h := &s.hops[at]
	return h.percent()
}

func (s *Session) Last(at int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastUnsafe(at)
}

func (s *Session) LastUnsafe(at int) int {
	h := &s.hops[at]
	return h.last
}

func (s *Session) Returned(at int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ReturnedUnsafe(at)
}

func (s *Session) ReturnedUnsafe(at int) int {
	h := &s.hops[at]
	return h.received
}

func (s *Session) Xmit(at int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.XmitUnsafe(at)
}

func (s *Session) XmitUnsafe(at int) int {
	h := &s.hops[at]
	return h.sent
}

func (s *Session) Dropped(at int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.DroppedUnsafe(at)
}

func (s *Session) DroppedUnsafe(at int) int {
	h := &s.hops[at]
	return h.sent - h.received
}

func (s *Session) StDev(at int) float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.StDevUnsafe(at)
}

func (s *Session) StDevUnsafe(at int) float32 {
	h := &s.hops[at]
	return h.stdev()
}

func (s *Session) GMean(at int) float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.GMeanUnsafe(at)
}

func (s *Session) GMeanUnsafe(at int) float32 {
	h := &s.hops[at]
	return h.gmean
}

// Jitter returns the difference between the last two samples of hop at.
func (s *Session) Jitter(at int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.JitterUnsafe(at)
}

func (s *Session) JitterUnsafe(at int) int {
	h := &s.hops[at]
	return h.jitter
}

func (s *Session) JAvg(at int) float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.JAvgUnsafe(at)
}

func (s *Session) JAvgUnsafe(at int) float32 {
	h := &s.hops[at]
	return h.javg
}

func (s *Session) JWorst(at int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.JWorstUnsafe(at)
}

func (s *Session) JWorstUnsafe(at int) int {
	h := &s.hops[at]
	return h.jworst
}

// JInta returns the RFC 1889 style interarrival jitter estimate of hop at.
func (s *Session) JInta(at int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.JIntaUnsafe(at)
}

func (s *Session) JIntaUnsafe(at int) int {
	h := &s.hops[at]
	return h.jinta
}

// Name returns the display name of hop at: the resolved host name or ICMP
// error text when set, otherwise the numeric address, or "???" for a hop
// that never answered.
func (s *Session) Name(at int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NameUnsafe(at)
}

func (s *Session) NameUnsafe(at int) string {
	h := &s.hops[at]
	return h.displayName()
}

func (s *Session) Location(at int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LocationUnsafe(at)
}

func (s *Session) LocationUnsafe(at int) string {
	h := &s.hops[at]
	return h.location
}
