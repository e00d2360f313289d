package geoip

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/sirupsen/logrus"
)

const (
	cipTTLSuccess = 24 * time.Hour
	cipTTLFailure = 5 * time.Minute
	cipCacheSize  = 5000
	cipMaxBody    = 64 << 10
)

var errNoCIPFields = errors.New("cip.cc answer has neither address nor isp")

// CIPResolver looks addresses up on cip.cc. Answers, including misses, are
// cached so a long trace queries every hop at most once per TTL.
type CIPResolver struct {
	baseURL string
	client  *http.Client
	cache   *ttlcache.Cache[string, *GeoLocation]
	log     *logrus.Entry
}

func NewCIPResolver() *CIPResolver {
	return newCIPResolver("https://cip.cc", &http.Client{Timeout: 2 * time.Second})
}

func newCIPResolver(baseURL string, client *http.Client) *CIPResolver {
	return &CIPResolver{
		baseURL: baseURL,
		client:  client,
		cache: ttlcache.New[string, *GeoLocation](
			ttlcache.WithTTL[string, *GeoLocation](cipTTLSuccess),
			ttlcache.WithCapacity[string, *GeoLocation](cipCacheSize),
		),
		log: logrus.WithField("component", "geoip.cip"),
	}
}

func (r *CIPResolver) Source() string { return "cip.cc" }

func (r *CIPResolver) Close() error {
	r.cache.DeleteAll()
	return nil
}

func (r *CIPResolver) Resolve(ip net.IP) *GeoLocation {
	if ip == nil {
		return nil
	}
	key := ip.String()
	if item := r.cache.Get(key); item != nil {
		return item.Value()
	}

	loc := r.lookup(context.Background(), key)
	ttl := cipTTLSuccess
	if loc == nil {
		ttl = cipTTLFailure
	}
	r.cache.Set(key, loc, ttl)
	return loc
}

func (r *CIPResolver) lookup(ctx context.Context, ip string) *GeoLocation {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+ip, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", "wmtr/1.0")
	resp, err := r.client.Do(req)
	if err != nil {
		r.log.WithError(err).WithField("ip", ip).Debug("cip lookup failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		r.log.WithFields(logrus.Fields{"ip": ip, "status": resp.StatusCode}).Debug("cip lookup rejected")
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, cipMaxBody))
	if err != nil {
		return nil
	}
	loc, err := parseCIP(string(body))
	if err != nil {
		r.log.WithError(err).WithField("ip", ip).Debug("cip answer not understood")
		return nil
	}
	loc.Source = r.Source()
	loc.Raw = strings.TrimSpace(string(body))
	return loc
}

// parseCIP reads the plain text answer of cip.cc, a list of
// "key<tab>: value" lines. The address line holds country, province and
// city separated by blanks.
func parseCIP(s string) (*GeoLocation, error) {
	fields := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 1024), cipMaxBody)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		if key = strings.TrimSpace(key); key != "" {
			fields[key] = strings.TrimSpace(value)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	address, isp := fields["地址"], fields["运营商"]
	if address == "" && isp == "" {
		return nil, errNoCIPFields
	}

	loc := &GeoLocation{ISP: isp}
	parts := strings.Fields(address)
	for i, dst := range []*string{&loc.Country, &loc.Province} {
		if i < len(parts) {
			*dst = parts[i]
		}
	}
	if len(parts) > 2 {
		loc.City = strings.Join(parts[2:], " ")
	}
	return loc, nil
}
