package geoip

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lionsoul2014/ip2region/binding/golang/xdb"

	"github.com/hyqhyq3/wmtr/internal/i18n"
)

// DefaultIP2RegionDBPath is where the xdb file lives unless configured
// otherwise: the user cache directory, or the temp directory without one.
func DefaultIP2RegionDBPath() string {
	base := os.TempDir()
	if dir, err := os.UserCacheDir(); err == nil && strings.TrimSpace(dir) != "" {
		base = dir
	}
	return filepath.Join(base, "wmtr", "ip2region.xdb")
}

// IP2RegionResolver answers from a local ip2region xdb file. The file backed
// searcher keeps a single read offset, so lookups take the mutex.
type IP2RegionResolver struct {
	path string

	mu       sync.Mutex
	searcher *xdb.Searcher
}

// NewIP2RegionResolver opens the database at path, fetching it first when it
// is missing and opt allows it. customURL overrides the mirror list.
func NewIP2RegionResolver(path, customURL string, opt DownloadOption) (*IP2RegionResolver, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New(i18n.T("geoip.ip2region.pathEmpty"))
	}
	if err := newFetcher(customURL).ensure(context.Background(), path, opt); err != nil {
		return nil, err
	}

	searcher, err := openXDB(path)
	if err != nil {
		return nil, err
	}
	return &IP2RegionResolver{path: path, searcher: searcher}, nil
}

func (r *IP2RegionResolver) Source() string { return "ip2region" }

func (r *IP2RegionResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.searcher != nil {
		r.searcher.Close()
		r.searcher = nil
	}
	return nil
}

func (r *IP2RegionResolver) Resolve(ip net.IP) *GeoLocation {
	if ip == nil {
		return nil
	}

	r.mu.Lock()
	var region string
	var err error
	if r.searcher != nil {
		region, err = r.searcher.SearchByStr(ip.String())
	}
	r.mu.Unlock()
	if err != nil {
		return nil
	}

	loc := parseIP2Region(region)
	if loc == nil {
		return nil
	}
	loc.Source = r.Source()
	loc.Raw = region
	return loc
}

// openXDB checks the file header and opens a searcher for the IP version
// the file was built for.
func openXDB(path string) (*xdb.Searcher, error) {
	fail := func(id string, err error) error {
		return errors.New(i18n.Tf(id, map[string]interface{}{"Error": err.Error()}))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fail("geoip.ip2region.openFailed", err)
	}
	defer f.Close()

	if err := xdb.Verify(f); err != nil {
		return nil, fail("geoip.ip2region.verifyFailed", err)
	}
	header, err := xdb.LoadHeader(f)
	if err != nil {
		return nil, fail("geoip.ip2region.headerFailed", err)
	}
	version, err := xdb.VersionFromHeader(header)
	if err != nil {
		return nil, fail("geoip.ip2region.versionFailed", err)
	}

	searcher, err := xdb.NewWithFileOnly(version, path)
	if err != nil {
		return nil, fail("geoip.ip2region.openFailed", err)
	}
	return searcher, nil
}

// ip2RegionLayouts maps the number of "|" separated columns to the column
// index of country, province, city and ISP. Older files carry a region
// column after the country.
var ip2RegionLayouts = map[int][4]int{
	4: {0, 1, 2, 3},
	5: {0, 2, 3, 4},
}

// parseIP2Region turns a record such as "中国|0|上海|上海|电信" into a
// location. Unknown columns are "0" or empty; a record without a single
// known column yields nil.
func parseIP2Region(region string) *GeoLocation {
	cols := strings.Split(strings.TrimSpace(region), "|")
	layout, ok := ip2RegionLayouts[len(cols)]
	if !ok {
		return nil
	}

	col := func(i int) string {
		v := strings.TrimSpace(cols[layout[i]])
		if v == "0" {
			return ""
		}
		return v
	}
	loc := GeoLocation{Country: col(0), Province: col(1), City: col(2), ISP: col(3)}
	if loc == (GeoLocation{}) {
		return nil
	}
	return &loc
}
