package geoip

import (
	"net"
	"testing"
)

func TestGeoLocationString(t *testing.T) {
	loc := &GeoLocation{Country: "Germany", Province: "0", City: "Frankfurt", ISP: "DE-CIX"}
	if got := loc.String(); got != "Germany Frankfurt DE-CIX" {
		t.Fatalf("unexpected string: %q", got)
	}
	var nilLoc *GeoLocation
	if got := nilLoc.String(); got != "" {
		t.Fatalf("nil location must be empty, got %q", got)
	}
}

func TestGeoLocationStringFallback(t *testing.T) {
	loc := &GeoLocation{
		Raw:    "0|0|0|内网IP|内网IP",
		Source: "ip2region",
	}
	if got := loc.String(); got != "内网IP 内网IP" {
		t.Fatalf("unexpected raw fallback: %q", got)
	}

	locEmpty := &GeoLocation{Source: "cip"}
	want := "[cip]"
	if got := locEmpty.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNoopResolver(t *testing.T) {
	r := NewNoopResolver()
	if loc := r.Resolve(net.ParseIP("192.0.2.1")); loc != nil {
		t.Fatalf("expected nil location, got %#v", loc)
	}
	if r.Source() != "none" {
		t.Fatalf("unexpected source %q", r.Source())
	}
}
