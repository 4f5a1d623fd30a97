package check

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/oschwald/maxminddb-golang/v2"
)

// GeoResolver 本地MaxMind库兜底解析国家，提供商没给国家字段时补位。
// 未配置数据库路径时所有查询返回空串。
type GeoResolver struct {
	db *maxminddb.Reader
}

// NewGeoResolver path为空或打开失败时返回可用的空解析器，不算致命错误
func NewGeoResolver(path string) *GeoResolver {
	if path == "" {
		return &GeoResolver{}
	}
	db, err := maxminddb.Open(path)
	if err != nil {
		slog.Warn(fmt.Sprintf("打开MaxMind数据库失败，国家兜底解析不可用: %v", err))
		return &GeoResolver{}
	}
	return &GeoResolver{db: db}
}

type geoRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
}

// Country 返回英文国家名，查不到时返回空串
func (g *GeoResolver) Country(ip string) string {
	if g == nil || g.db == nil {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}

	var rec geoRecord
	if err := g.db.Lookup(addr).Decode(&rec); err != nil {
		return ""
	}
	if name, ok := rec.Country.Names["en"]; ok && name != "" {
		return name
	}
	return rec.Country.ISOCode
}

func (g *GeoResolver) Close() {
	if g != nil && g.db != nil {
		_ = g.db.Close()
	}
}
