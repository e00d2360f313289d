package mtr

import (
	"context"
	"errors"
	"net/netip"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrTraceActive = errors.New("a trace is still running")

// Session owns the hop table of one trace at a time. A single RWMutex guards
// the whole table together with the tracing flag; workers only ever write
// their own hop, so contention is limited to the lock itself.
//
// Every getter comes in two flavours. The plain one takes the read lock and
// may be called while tracing. The Unsafe one skips locking and must only be
// used when no worker or resolver can be writing, e.g. after Done is closed.
type Session struct {
	cfg       Config
	transport EchoTransport
	names     *NameResolver
	log       *logrus.Entry

	mu      sync.RWMutex
	hops    [MaxHops]hop
	target  netip.Addr
	tracing bool
	gen     uint64
	stop    chan struct{}
	done    chan struct{}
}

type Option func(*Session)

// WithNameResolver enables the reverse-lookup side channel. Without it hop
// names stay empty and readers see the numeric address.
func WithNameResolver(r *NameResolver) Option {
	return func(s *Session) { s.names = r }
}

func WithLogger(log *logrus.Entry) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

func NewSession(cfg Config, transport EchoTransport, opts ...Option) (*Session, error) {
	if transport == nil {
		return nil, ErrNoTransport
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:       cfg,
		transport: transport,
		log:       logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DoTrace starts one worker per TTL against target. With async set it
// returns immediately and the caller watches IsTracing or Done; otherwise it
// blocks until every worker has exited.
func (s *Session) DoTrace(target netip.Addr, async bool) error {
	s.mu.Lock()
	if s.done != nil && !isClosed(s.done) {
		s.mu.Unlock()
		return ErrTraceActive
	}
	s.hops = [MaxHops]hop{}
	s.target = target
	s.tracing = true
	s.gen++
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	gen, stop, done := s.gen, s.stop, s.done
	s.mu.Unlock()

	log := s.log.WithField("target", target.String())
	log.WithField("cycles", s.cfg.Cycles).Debug("trace started")

	var wg sync.WaitGroup
	for ttl := 1; ttl <= MaxHops; ttl++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.traceWorker(ttl, target, gen, stop, log)
		}()
	}

	if async {
		go s.waitWorkers(&wg, done, log)
	} else {
		s.waitWorkers(&wg, done, log)
	}
	return nil
}

// waitWorkers clears the tracing flag only once every worker has returned,
// not merely once StopTrace was called.
func (s *Session) waitWorkers(wg *sync.WaitGroup, done chan struct{}, log *logrus.Entry) {
	wg.Wait()
	s.mu.Lock()
	s.tracing = false
	close(done)
	s.mu.Unlock()
	log.Debug("trace finished")
}

// StopTrace asks the workers to exit. Probes already in flight are not
// interrupted; each worker notices the request before its next probe.
func (s *Session) StopTrace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracing = false
	if s.stop != nil && !isClosed(s.stop) {
		close(s.stop)
	}
}

func (s *Session) IsTracing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracing
}

// Done is closed once the workers of the latest trace have all exited. It is
// nil before the first DoTrace.
func (s *Session) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Wait blocks until the current trace finishes or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	done := s.Done()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Config() Config { return s.cfg }

func (s *Session) Target() netip.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

// Max returns the number of hops that make up the path, see MaxUnsafe.
func (s *Session) Max() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxUnsafe()
}

// MaxUnsafe returns the number of hops that make up the path: up to the
// first hop answering with the target address, or, when the target never
// answered, all hops minus a trailing run of identical addresses.
func (s *Session) MaxUnsafe() int {
	return s.maxUnsafe()
}

func (s *Session) maxUnsafe() int {
	if s.target.IsValid() {
		for i := range s.hops {
			if s.hops[i].addr == s.target {
				return i + 1
			}
		}
	}

	n := MaxHops
	for n > 1 && s.hops[n-1].addr.IsValid() && s.hops[n-1].addr == s.hops[n-2].addr {
		n--
	}
	return n
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
