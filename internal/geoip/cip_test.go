package geoip

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestParseCIP(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want GeoLocation
	}{
		{
			name: "address only",
			in:   "IP\t: 8.8.8.8\n地址\t: 美国 加利福尼亚州 圣克拉拉\n\n数据二\t: 美国加利福尼亚州圣克拉拉 | 谷歌公司DNS服务器\n",
			want: GeoLocation{Country: "美国", Province: "加利福尼亚州", City: "圣克拉拉"},
		},
		{
			name: "country and isp",
			in:   "IP\t: 1.1.1.1\n地址\t: 澳大利亚\n运营商\t: CloudFlare公共DNS服务器\n",
			want: GeoLocation{Country: "澳大利亚", ISP: "CloudFlare公共DNS服务器"},
		},
		{
			name: "full record",
			in:   "IP\t: 59.111.160.244\n地址\t: 中国 浙江 杭州\n运营商\t: 网易\n",
			want: GeoLocation{Country: "中国", Province: "浙江", City: "杭州", ISP: "网易"},
		},
		{
			name: "multi word city",
			in:   "IP: 203.0.113.9\n地址: 美国 纽约州 New York City\n",
			want: GeoLocation{Country: "美国", Province: "纽约州", City: "New York City"},
		},
		{
			name: "ipv6 address line",
			in:   "IP\t: 2001:db8::1\n地址\t: 中国 北京\n",
			want: GeoLocation{Country: "中国", Province: "北京"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := parseCIP(tt.in)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if *loc != tt.want {
				t.Fatalf("got %#v want %#v", *loc, tt.want)
			}
		})
	}
}

func TestParseCIP_NoFields(t *testing.T) {
	if _, err := parseCIP("IP\t: 192.0.2.1\n"); !errors.Is(err, errNoCIPFields) {
		t.Fatalf("expected errNoCIPFields, got %v", err)
	}
}

func TestParseCIP_String(t *testing.T) {
	loc, err := parseCIP("地址\t: 中国 浙江 杭州\n运营商\t: 网易\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := loc.String(); got != "中国 浙江 杭州 网易" {
		t.Fatalf("unexpected string: %q", got)
	}
}

func TestCIPResolver_CachesAnswers(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/192.0.2.99" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "IP\t: 8.8.8.8\n地址\t: 美国 加利福尼亚州 圣克拉拉\n运营商\t: 谷歌\n")
	}))
	t.Cleanup(srv.Close)

	r := newCIPResolver(srv.URL, srv.Client())
	defer r.Close()

	for i := 0; i < 3; i++ {
		loc := r.Resolve(net.ParseIP("8.8.8.8"))
		if loc == nil || loc.City != "圣克拉拉" || loc.Source != "cip.cc" {
			t.Fatalf("unexpected location: %#v", loc)
		}
	}
	for i := 0; i < 2; i++ {
		if loc := r.Resolve(net.ParseIP("192.0.2.99")); loc != nil {
			t.Fatalf("expected miss, got %#v", loc)
		}
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 upstream requests, got %d", hits.Load())
	}
}
