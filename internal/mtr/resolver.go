package mtr

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/hyqhyq3/wmtr/internal/geoip"
)

const (
	defaultLookupTimeout = 2 * time.Second
	ptrSuccessTTL        = 30 * time.Minute
	ptrFailureTTL        = time.Minute
)

// LookupAddrFunc performs a reverse lookup, as net.Resolver.LookupAddr does.
type LookupAddrFunc func(ctx context.Context, addr string) ([]string, error)

// NameResolver turns hop addresses into display names and, when a geo
// resolver is configured, into locations. Results are cached so restarting
// a trace does not hit the DNS again for every hop.
type NameResolver struct {
	lookup  LookupAddrFunc
	geo     geoip.GeoResolver
	timeout time.Duration
	cache   *ttlcache.Cache[netip.Addr, ptrEntry]
}

type ptrEntry struct {
	name string
	ok   bool
}

type ResolverOption func(*NameResolver)

func WithLookupFunc(fn LookupAddrFunc) ResolverOption {
	return func(r *NameResolver) {
		if fn != nil {
			r.lookup = fn
		}
	}
}

func WithGeoResolver(geo geoip.GeoResolver) ResolverOption {
	return func(r *NameResolver) { r.geo = geo }
}

func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *NameResolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewNameResolver(opts ...ResolverOption) *NameResolver {
	r := &NameResolver{
		lookup:  net.DefaultResolver.LookupAddr,
		timeout: defaultLookupTimeout,
		cache: ttlcache.New[netip.Addr, ptrEntry](
			ttlcache.WithTTL[netip.Addr, ptrEntry](ptrSuccessTTL),
			ttlcache.WithDisableTouchOnHit[netip.Addr, ptrEntry](),
		),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the host name registered for addr, falling back to the
// textual address when the lookup fails.
func (r *NameResolver) Name(ctx context.Context, addr netip.Addr) string {
	if item := r.cache.Get(addr); item != nil {
		return item.Value().name
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	entry := ptrEntry{name: addr.String()}
	names, err := r.lookup(ctx, addr.String())
	if err == nil && len(names) > 0 {
		if name := strings.TrimSuffix(names[0], "."); name != "" {
			entry = ptrEntry{name: name, ok: true}
		}
	}

	ttl := ptrSuccessTTL
	if !entry.ok {
		ttl = ptrFailureTTL
	}
	r.cache.Set(addr, entry, ttl)
	return entry.name
}

// Location returns a printable location for addr, or "" without a geo
// resolver or when the address is unknown to it.
func (r *NameResolver) Location(addr netip.Addr) string {
	if r.geo == nil {
		return ""
	}
	loc := r.geo.Resolve(net.IP(addr.AsSlice()))
	if loc == nil {
		return ""
	}
	return loc.String()
}
