package mtr

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/hyqhyq3/wmtr/internal/i18n"
)

var (
	ErrNoTransport    = errors.New("echo transport is nil")
	ErrTargetNotFound = errors.New("target could not be resolved")
)

// EchoTransport sends a single echo request with the given TTL and payload
// size and blocks until a matching answer arrives or timeout elapses.
// Implementations must be safe for concurrent use: every TTL worker of a
// session shares one transport.
//
// A probe that simply gets no answer is not an error; it is reported as
// StatusNoReply. The error return is reserved for local failures such as a
// closed socket.
type EchoTransport interface {
	Probe(ctx context.Context, target netip.Addr, ttl, size int, timeout time.Duration) (EchoReply, error)
}

type EchoReply struct {
	Status    Status
	RTT       time.Duration
	Responder netip.Addr
}

// RTTMillis is the round-trip time truncated to whole milliseconds.
func (r EchoReply) RTTMillis() int {
	return int(r.RTT / time.Millisecond)
}

// ResolveTarget maps a host name or a literal address to the address that
// will be traced, honouring the requested IP version.
func ResolveTarget(ctx context.Context, target string, ipVersion int) (netip.Addr, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return netip.Addr{}, errors.New(i18n.T("err.targetEmpty"))
	}
	if addr, err := netip.ParseAddr(target); err == nil {
		addr = addr.Unmap()
		if !matchesVersion(addr, ipVersion) {
			return netip.Addr{}, ErrTargetNotFound
		}
		return addr, nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", target)
	if err != nil {
		return netip.Addr{}, errors.Join(ErrTargetNotFound, errors.New(i18n.Tf("err.resolveTarget", map[string]interface{}{"Error": err.Error()})))
	}
	for _, a := range addrs {
		a = a.Unmap()
		if matchesVersion(a, ipVersion) {
			return a, nil
		}
	}
	return netip.Addr{}, ErrTargetNotFound
}

func matchesVersion(addr netip.Addr, ipVersion int) bool {
	switch ipVersion {
	case 4:
		return addr.Is4()
	case 6:
		return addr.Is6()
	default:
		return true
	}
}
