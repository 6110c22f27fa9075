package geo

import (
	"image/color"
	"math"
	"math/rand"
	"sort"

	"github.com/nodefleet/fleetview/pkg/nodes"
)

const (
	JitterInner    = 2.0
	JitterOuter    = 10.0
	JitterAttempts = 10
)

// PlacedPoint is a node projected onto the canvas. It is rebuilt with every
// placement and never patched.
type PlacedPoint struct {
	Server  string
	X, Y    float64
	BaseX   float64
	BaseY   float64
	Color   color.RGBA
	Country string
	Active  bool
}

type Placement struct {
	Points map[string]PlacedPoint
	// Order lists placed servers in input order.
	Order         []string
	CountryCounts map[string]int
	// Excluded lists servers that fell in no country.
	Excluded []string
}

func (pl Placement) Len() int { return len(pl.Order) }

// Active returns placed points whose node is active, in placement order.
func (pl Placement) Active() []PlacedPoint {
	var out []PlacedPoint
	for _, s := range pl.Order {
		if p := pl.Points[s]; p.Active {
			out = append(out, p)
		}
	}
	return out
}

type CountryCount struct {
	ID    string
	Name  string
	Count int
}

// TopCountries returns the n countries holding most nodes, ties broken by name.
func (pl Placement) TopCountries(w *World, n int) []CountryCount {
	out := make([]CountryCount, 0, len(pl.CountryCounts))
	for id, c := range pl.CountryCounts {
		name := id
		if w != nil {
			if cc := w.Country(id); cc != nil {
				name = cc.Name
			}
		}
		out = append(out, CountryCount{ID: id, Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

type Placer struct {
	World *World
	Proj  Projection
	Rand  *rand.Rand

	Inner, Outer float64
	Attempts     int
}

// NewPlacer returns a Placer with the default jitter annulus. A nil rng uses
// the package-level source.
func NewPlacer(w *World, proj Projection, rng *rand.Rand) *Placer {
	return &Placer{
		World:    w,
		Proj:     proj,
		Rand:     rng,
		Inner:    JitterInner,
		Outer:    JitterOuter,
		Attempts: JitterAttempts,
	}
}

func (p *Placer) float64() float64 {
	if p.Rand != nil {
		return p.Rand.Float64()
	}
	return rand.Float64()
}

// Place projects points onto the canvas. Points outside every country are
// dropped and not counted. Points sharing a country with at least one other
// point are nudged inside an annulus around their base position, as long as
// the nudged position still maps back into that country.
func (p *Placer) Place(points []nodes.NodePoint) Placement {
	pl := Placement{
		Points:        make(map[string]PlacedPoint, len(points)),
		CountryCounts: make(map[string]int),
	}
	owners := make([]*Country, len(points))
	for i, n := range points {
		c := p.World.CountryAt(n.Lon, n.Lat)
		if c == nil {
			pl.Excluded = append(pl.Excluded, n.Server)
			continue
		}
		owners[i] = c
		pl.CountryCounts[c.ID]++
	}

	for i, n := range points {
		c := owners[i]
		if c == nil {
			continue
		}
		if _, dup := pl.Points[n.Server]; dup {
			continue
		}
		bx, by := p.Proj.Project(n.Lon, n.Lat)
		x, y := bx, by
		if pl.CountryCounts[c.ID] >= 2 {
			x, y = p.jitter(c, bx, by)
		}
		pl.Points[n.Server] = PlacedPoint{
			Server:  n.Server,
			X:       x,
			Y:       y,
			BaseX:   bx,
			BaseY:   by,
			Color:   nodes.MarkerColor(n),
			Country: c.ID,
			Active:  n.IsActive,
		}
		pl.Order = append(pl.Order, n.Server)
	}
	return pl
}

func (p *Placer) jitter(c *Country, bx, by float64) (float64, float64) {
	inner2, outer2 := p.Inner*p.Inner, p.Outer*p.Outer
	for i := 0; i < p.Attempts; i++ {
		angle := p.float64() * 2 * math.Pi
		r := math.Sqrt(inner2 + p.float64()*(outer2-inner2))
		x := bx + r*math.Cos(angle)
		y := by + r*math.Sin(angle)
		lon, lat, ok := p.Proj.Invert(x, y)
		if ok && c.Contains(lon, lat) {
			return x, y
		}
	}
	return bx, by
}
