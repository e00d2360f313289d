package geoip

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseIP2Region(t *testing.T) {
	tests := []struct {
		record string
		want   *GeoLocation
	}{
		{"中国|0|上海|上海|电信", &GeoLocation{Country: "中国", Province: "上海", City: "上海", ISP: "电信"}},
		{"美国|0|加利福尼亚|0|0", &GeoLocation{Country: "美国", Province: "加利福尼亚"}},
		{"中国|广东省|深圳市|联通", &GeoLocation{Country: "中国", Province: "广东省", City: "深圳市", ISP: "联通"}},
		{"0|0|0|0", nil},
		{"garbage", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := parseIP2Region(tt.record)
		if (got == nil) != (tt.want == nil) {
			t.Fatalf("parseIP2Region(%q): got %#v want %#v", tt.record, got, tt.want)
		}
		if got != nil && *got != *tt.want {
			t.Fatalf("parseIP2Region(%q): got %#v want %#v", tt.record, *got, *tt.want)
		}
	}
}

func TestDefaultIP2RegionDBPath(t *testing.T) {
	p := DefaultIP2RegionDBPath()
	if filepath.Base(p) != "ip2region.xdb" || filepath.Base(filepath.Dir(p)) != "wmtr" {
		t.Fatalf("unexpected default path %q", p)
	}
}

func TestNewIP2RegionResolver_Errors(t *testing.T) {
	if _, err := NewIP2RegionResolver("  ", "", DownloadOption{Answer: DownloadNo}); err == nil {
		t.Fatalf("expected error for an empty path")
	}

	missing := filepath.Join(t.TempDir(), "missing.xdb")
	if _, err := NewIP2RegionResolver(missing, "", DownloadOption{Answer: DownloadNo}); err == nil {
		t.Fatalf("expected error when the download is declined")
	}

	bogus := filepath.Join(t.TempDir(), "bogus.xdb")
	if err := os.WriteFile(bogus, []byte("not an xdb file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewIP2RegionResolver(bogus, "", DownloadOption{Answer: DownloadNo}); err == nil {
		t.Fatalf("expected error for a corrupt database")
	}
}

func TestIP2RegionResolver_ClosedReturnsNil(t *testing.T) {
	r := &IP2RegionResolver{}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if loc := r.Resolve([]byte{192, 0, 2, 1}); loc != nil {
		t.Fatalf("expected nil from a closed resolver, got %#v", loc)
	}
}
