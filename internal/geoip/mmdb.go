package geoip

import (
	"errors"
	"net"
	"strings"

	"github.com/oschwald/maxminddb-golang"

	"github.com/hyqhyq3/wmtr/internal/i18n"
)

// MMDBResolver reads MaxMind format databases such as GeoLite2-City or
// GeoLite2-ASN. Only the fields present in the database are filled.
type MMDBResolver struct {
	path string
	lang string
	db   *maxminddb.Reader
}

type mmdbNames map[string]string

type mmdbRecord struct {
	Country struct {
		Names mmdbNames `maxminddb:"names"`
	} `maxminddb:"country"`
	Subdivisions []struct {
		Names mmdbNames `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	City struct {
		Names mmdbNames `maxminddb:"names"`
	} `maxminddb:"city"`
	ASOrganization string `maxminddb:"autonomous_system_organization"`
	ISP            string `maxminddb:"isp"`
}

func NewMMDBResolver(path, lang string) (*MMDBResolver, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New(i18n.T("geoip.mmdb.pathEmpty"))
	}
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, errors.New(i18n.Tf("geoip.mmdb.openFailed", map[string]interface{}{"Error": err.Error()}))
	}
	return &MMDBResolver{path: path, lang: lang, db: db}, nil
}

func (r *MMDBResolver) Source() string { return "mmdb" }

func (r *MMDBResolver) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *MMDBResolver) Resolve(ip net.IP) *GeoLocation {
	if ip == nil || r.db == nil {
		return nil
	}
	var rec mmdbRecord
	if err := r.db.Lookup(ip, &rec); err != nil {
		return nil
	}
	loc := rec.location(r.lang)
	if loc == nil {
		return nil
	}
	loc.Source = r.Source()
	return loc
}

func (rec *mmdbRecord) location(lang string) *GeoLocation {
	loc := GeoLocation{
		Country: rec.Country.Names.pick(lang),
		City:    rec.City.Names.pick(lang),
		ISP:     rec.ISP,
	}
	if len(rec.Subdivisions) > 0 {
		loc.Province = rec.Subdivisions[0].Names.pick(lang)
	}
	if loc.ISP == "" {
		loc.ISP = rec.ASOrganization
	}
	if loc == (GeoLocation{}) {
		return nil
	}
	return &loc
}

// pick returns the name for lang, trying its base language ("zh" for
// "zh-TW") and then English.
func (n mmdbNames) pick(lang string) string {
	if len(n) == 0 {
		return ""
	}
	candidates := []string{lang}
	if base, _, ok := strings.Cut(lang, "-"); ok {
		candidates = append(candidates, base)
	}
	if strings.HasPrefix(lang, "zh") {
		candidates = append(candidates, "zh-CN")
	}
	candidates = append(candidates, "en")
	for _, c := range candidates {
		if v := n[c]; v != "" {
			return v
		}
	}
	return ""
}
