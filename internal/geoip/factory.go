package geoip

import (
	"errors"
	"strings"

	"github.com/hyqhyq3/wmtr/internal/i18n"
)

type Options struct {
	IP2RegionDB  string
	IP2RegionURL string
	Download     DownloadOption
	MMDBPath     string
	// Lang picks the localized names of an mmdb record, e.g. "en" or "zh-CN".
	Lang string
}

// NewResolver builds the resolver named by source. An empty source or
// "none" disables location lookups.
func NewResolver(source string, opts Options) (GeoResolver, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", "none", "noop", "off":
		return NewNoopResolver(), nil
	case "cip", "cip.cc":
		return NewCIPResolver(), nil
	case "ip2region":
		path := opts.IP2RegionDB
		if strings.TrimSpace(path) == "" {
			path = DefaultIP2RegionDBPath()
		}
		r, err := NewIP2RegionResolver(path, opts.IP2RegionURL, opts.Download)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "mmdb", "maxmind", "geolite2":
		r, err := NewMMDBResolver(opts.MMDBPath, opts.Lang)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, errors.New(i18n.Tf("geoip.unknownSource", map[string]interface{}{"Source": source}))
	}
}
