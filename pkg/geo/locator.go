package geo

import (
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/nodefleet/fleetview/pkg/nodes"
	"github.com/oschwald/maxminddb-golang"
)

// Locator resolves coordinates for nodes whose snapshot carries none, using a
// MaxMind City database keyed by the server's IP address.
type Locator struct {
	db *maxminddb.Reader
}

func OpenLocator(path string) (*Locator, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	return &Locator{db: db}, nil
}

func NewLocator(data []byte) (*Locator, error) {
	db, err := maxminddb.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("load geoip db: %w", err)
	}
	return &Locator{db: db}, nil
}

func (l *Locator) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// HostIP extracts an IP from a server identifier such as "1.2.3.4",
// "1.2.3.4:21841" or "http://1.2.3.4:21841/".
func HostIP(server string) net.IP {
	s := server
	if i := strings.Index(s, "://"); i != -1 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '/'); i != -1 {
		s = s[:i]
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	return net.ParseIP(strings.Trim(s, "[]"))
}

func (l *Locator) Locate(server string) (lat, lon float64, ok bool) {
	if l == nil || l.db == nil {
		return 0, 0, false
	}
	ip := HostIP(server)
	if ip == nil {
		return 0, 0, false
	}
	var record struct {
		Location struct {
			Latitude  float64 `maxminddb:"latitude"`
			Longitude float64 `maxminddb:"longitude"`
		} `maxminddb:"location"`
	}
	if err := l.db.Lookup(ip, &record); err != nil {
		log.Printf("[GEO] Lookup %s failed: %v", ip, err)
		return 0, 0, false
	}
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return 0, 0, false
	}
	return record.Location.Latitude, record.Location.Longitude, true
}

// Fill returns a copy of points with missing coordinates resolved where
// possible. The input slice is left untouched.
func (l *Locator) Fill(points []nodes.NodePoint) []nodes.NodePoint {
	out := make([]nodes.NodePoint, len(points))
	copy(out, points)
	if l == nil {
		return out
	}
	for i := range out {
		if out[i].HasLocation() {
			continue
		}
		if lat, lon, ok := l.Locate(out[i].Server); ok {
			out[i].Lat, out[i].Lon = lat, lon
		}
	}
	return out
}
