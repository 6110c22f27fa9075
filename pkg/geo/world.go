// Package geo places geo-tagged nodes on a 2D world map: country polygons from
// GeoJSON, world projections with inverses, and per-country anti-collision
// jitter that keeps markers inside their own borders.
package geo

import (
	"fmt"
	"math"
	"strings"

	"github.com/biter777/countries"
	geojson "github.com/paulmach/go.geojson"
)

// Ring is a closed sequence of [lon, lat] pairs.
type Ring [][2]float64

// Polygon is an outer ring followed by zero or more holes.
type Polygon []Ring

type Country struct {
	ID       string
	Name     string
	Polygons []Polygon

	minLon, minLat, maxLon, maxLat float64
}

type World struct {
	Countries []*Country
	byID      map[string]*Country
}

// LoadWorld parses a GeoJSON FeatureCollection of country borders. Features
// that are neither Polygon nor MultiPolygon are skipped.
func LoadWorld(data []byte) (*World, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse world geojson: %w", err)
	}
	w := &World{byID: make(map[string]*Country)}
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		var polys [][][][]float64
		switch {
		case f.Geometry.IsPolygon():
			polys = [][][][]float64{f.Geometry.Polygon}
		case f.Geometry.IsMultiPolygon():
			polys = f.Geometry.MultiPolygon
		default:
			continue
		}

		id := featureID(f, i)
		c, ok := w.byID[id]
		if !ok {
			c = &Country{
				ID:     id,
				Name:   featureName(f, id),
				minLon: math.Inf(1), minLat: math.Inf(1),
				maxLon: math.Inf(-1), maxLat: math.Inf(-1),
			}
			w.byID[id] = c
			w.Countries = append(w.Countries, c)
		}
		for _, poly := range polys {
			c.addPolygon(poly)
		}
	}
	if len(w.Countries) == 0 {
		return nil, fmt.Errorf("world geojson has no polygon features")
	}
	return w, nil
}

func featureID(f *geojson.Feature, idx int) string {
	if f.ID != nil {
		if s := strings.TrimSpace(fmt.Sprint(f.ID)); s != "" && s != "-99" {
			return s
		}
	}
	for _, k := range []string{"iso_a3", "ISO_A3", "adm0_a3", "ADM0_A3", "iso_a2", "ISO_A2", "name", "NAME"} {
		if v, ok := f.Properties[k].(string); ok && v != "" && v != "-99" {
			return v
		}
	}
	return fmt.Sprintf("feature-%d", idx)
}

func featureName(f *geojson.Feature, id string) string {
	for _, k := range []string{"name", "NAME", "admin", "ADMIN"} {
		if v, ok := f.Properties[k].(string); ok && v != "" {
			return v
		}
	}
	return CountryName(id)
}

// CountryName resolves an ISO code (alpha-2, alpha-3 or numeric) to a short
// display name, falling back to the code itself.
func CountryName(code string) string {
	name := countries.ByName(code).String()
	if name == "Unknown" || name == "" {
		return code
	}
	if idx := strings.Index(name, " ("); idx != -1 {
		name = name[:idx]
	}
	return name
}

func (c *Country) addPolygon(rings [][][]float64) {
	var p Polygon
	for ri, ring := range rings {
		r := make(Ring, 0, len(ring))
		for _, pt := range ring {
			if len(pt) < 2 {
				continue
			}
			r = append(r, [2]float64{pt[0], pt[1]})
			if ri == 0 {
				c.minLon = math.Min(c.minLon, pt[0])
				c.maxLon = math.Max(c.maxLon, pt[0])
				c.minLat = math.Min(c.minLat, pt[1])
				c.maxLat = math.Max(c.maxLat, pt[1])
			}
		}
		if len(r) >= 3 {
			p = append(p, r)
		}
	}
	if len(p) > 0 {
		c.Polygons = append(c.Polygons, p)
	}
}

// Contains reports whether (lon, lat) lies inside the country, honouring holes.
func (c *Country) Contains(lon, lat float64) bool {
	if lon < c.minLon || lon > c.maxLon || lat < c.minLat || lat > c.maxLat {
		return false
	}
	for _, p := range c.Polygons {
		if !p[0].contains(lon, lat) {
			continue
		}
		inHole := false
		for _, hole := range p[1:] {
			if hole.contains(lon, lat) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// contains is an even-odd ray cast.
func (r Ring) contains(lon, lat float64) bool {
	in := false
	for i, j := 0, len(r)-1; i < len(r); j, i = i, i+1 {
		xi, yi := r[i][0], r[i][1]
		xj, yj := r[j][0], r[j][1]
		if (yi > lat) != (yj > lat) && lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			in = !in
		}
	}
	return in
}

// CountryAt returns the country containing (lon, lat), or nil for ocean.
func (w *World) CountryAt(lon, lat float64) *Country {
	for _, c := range w.Countries {
		if c.Contains(lon, lat) {
			return c
		}
	}
	return nil
}

func (w *World) Country(id string) *Country {
	return w.byID[id]
}
