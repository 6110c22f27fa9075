package geo

import (
	"fmt"
	"math"
)

// Projection maps geographic degrees to canvas pixels and back. Invert reports
// false for pixels outside the projected globe.
type Projection interface {
	Project(lon, lat float64) (x, y float64)
	Invert(x, y float64) (lon, lat float64, ok bool)
}

// Raw projections work in radians on a unit sphere.
type Raw interface {
	forward(lambda, phi float64) (x, y float64)
	inverse(x, y float64) (lambda, phi float64, ok bool)
}

type NaturalEarth struct{}

func (NaturalEarth) forward(lambda, phi float64) (float64, float64) {
	phi2 := phi * phi
	phi4 := phi2 * phi2
	x := lambda * (0.8707 - 0.131979*phi2 + phi4*(-0.013791+phi4*(0.003971*phi2-0.001529*phi4)))
	y := phi * (1.007226 + phi2*(0.015085+phi4*(-0.044475+0.028874*phi2-0.005916*phi4)))
	return x, y
}

func (NaturalEarth) inverse(x, y float64) (float64, float64, bool) {
	phi := y
	for i := 0; i < 25; i++ {
		phi2 := phi * phi
		phi4 := phi2 * phi2
		delta := (phi*(1.007226+phi2*(0.015085+phi4*(-0.044475+0.028874*phi2-0.005916*phi4))) - y) /
			(1.007226 + phi2*(0.015085*3+phi4*(-0.044475*7+0.028874*9*phi2-0.005916*11*phi4)))
		phi -= delta
		if math.Abs(delta) < 1e-9 {
			break
		}
	}
	phi2 := phi * phi
	lambda := x / (0.8707 + phi2*(-0.131979+phi2*(-0.013791+phi2*phi2*phi2*(0.003971-0.001529*phi2))))
	if math.IsNaN(phi) || math.IsNaN(lambda) || math.Abs(phi) > math.Pi/2+1e-9 || math.Abs(lambda) > math.Pi+1e-9 {
		return 0, 0, false
	}
	return lambda, phi, true
}

// Mollweide is the equal-area projection used for the map background.
type Mollweide struct{}

func (Mollweide) forward(lambda, phi float64) (float64, float64) {
	theta := phi
	for i := 0; i < 10; i++ {
		denom := 2 + 2*math.Cos(2*theta)
		if math.Abs(denom) < 1e-9 {
			break
		}
		delta := (2*theta + math.Sin(2*theta) - math.Pi*math.Sin(phi)) / denom
		theta -= delta
		if math.Abs(delta) < 1e-7 {
			break
		}
	}
	return (2 * math.Sqrt(2) / math.Pi) * lambda * math.Cos(theta), math.Sqrt(2) * math.Sin(theta)
}

func (Mollweide) inverse(x, y float64) (float64, float64, bool) {
	if math.Abs(y) > math.Sqrt(2) {
		return 0, 0, false
	}
	theta := math.Asin(y / math.Sqrt(2))
	s := (2*theta + math.Sin(2*theta)) / math.Pi
	if math.Abs(s) > 1 {
		return 0, 0, false
	}
	phi := math.Asin(s)
	c := math.Cos(theta)
	if math.Abs(c) < 1e-12 {
		return 0, phi, true
	}
	lambda := math.Pi * x / (2 * math.Sqrt(2) * c)
	if math.Abs(lambda) > math.Pi+1e-9 {
		return 0, 0, false
	}
	return lambda, phi, true
}

// Fitted scales and translates a raw projection onto a canvas, y pointing down.
type Fitted struct {
	Raw    Raw
	Scale  float64
	CX, CY float64
	// MaxLat clamps latitude before projecting. Zero disables the clamp.
	MaxLat float64
}

// NewProjection builds a canvas projection by name ("naturalearth" or
// "mollweide"). A scale of zero fits the whole globe into width x height.
func NewProjection(name string, width, height int, scale float64) (*Fitted, error) {
	var raw Raw
	var maxLat float64
	switch name {
	case "", "naturalearth", "natural-earth":
		raw = NaturalEarth{}
	case "mollweide":
		raw = Mollweide{}
		maxLat = 89.5
	default:
		return nil, fmt.Errorf("unknown projection %q", name)
	}
	f := FitSize(raw, width, height)
	f.MaxLat = maxLat
	if scale > 0 {
		f.Scale = scale
	}
	return f, nil
}

// FitSize centres raw on a width x height canvas, scaled so the whole globe
// fits with a small margin.
func FitSize(raw Raw, width, height int) *Fitted {
	return &Fitted{
		Raw:   raw,
		Scale: fitScale(raw, float64(width), float64(height), 0.02),
		CX:    float64(width) / 2,
		CY:    float64(height) / 2,
	}
}

func fitScale(raw Raw, width, height, padding float64) float64 {
	maxX, _ := raw.forward(math.Pi, 0)
	_, maxY := raw.forward(0, math.Pi/2)
	kx := width * (1 - 2*padding) / (2 * math.Abs(maxX))
	ky := height * (1 - 2*padding) / (2 * math.Abs(maxY))
	return math.Min(kx, ky)
}

func (f *Fitted) Project(lon, lat float64) (float64, float64) {
	if f.MaxLat > 0 {
		lat = math.Max(-f.MaxLat, math.Min(f.MaxLat, lat))
	}
	rx, ry := f.Raw.forward(lon*math.Pi/180, lat*math.Pi/180)
	return f.CX + f.Scale*rx, f.CY - f.Scale*ry
}

func (f *Fitted) Invert(x, y float64) (float64, float64, bool) {
	if f.Scale == 0 {
		return 0, 0, false
	}
	lambda, phi, ok := f.Raw.inverse((x-f.CX)/f.Scale, (f.CY-y)/f.Scale)
	if !ok {
		return 0, 0, false
	}
	return lambda * 180 / math.Pi, phi * 180 / math.Pi, true
}
