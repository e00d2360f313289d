package geoip

import (
	"net"
	"strings"
)

// GeoResolver IP 地理位置解析器接口。
// 解析失败时应返回 nil（不返回 error），调用方需按“无位置信息”处理。
type GeoResolver interface {
	Resolve(ip net.IP) *GeoLocation
	Source() string
	Close() error
}

type GeoLocation struct {
	Country  string `json:"country,omitempty" yaml:"country,omitempty"`
	Province string `json:"province,omitempty" yaml:"province,omitempty"`
	City     string `json:"city,omitempty" yaml:"city,omitempty"`
	ISP      string `json:"isp,omitempty" yaml:"isp,omitempty"`
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
	Raw      string `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// String joins the known fields. Without any of them it falls back to the
// raw record, then to the source name in brackets.
func (g *GeoLocation) String() string {
	if g == nil {
		return ""
	}
	parts := compact(g.Country, g.Province, g.City, g.ISP)
	if len(parts) == 0 && g.Raw != "" {
		parts = compact(strings.Split(g.Raw, "|")...)
	}
	if len(parts) == 0 {
		if g.Source == "" {
			return ""
		}
		return "[" + g.Source + "]"
	}
	return strings.Join(parts, " ")
}

func compact(fields ...string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" && f != "0" {
			out = append(out, f)
		}
	}
	return out
}
