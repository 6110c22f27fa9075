package nodeengine

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/nodefleet/fleetview/pkg/geo"
	"github.com/nodefleet/fleetview/pkg/nodes"
)

const (
	markerRadius   = 3.0
	selectedRadius = 6.5
	curveSegments  = 24
)

type view struct {
	placement geo.Placement
	summary   nodes.Summary
	top       []geo.CountryCount
	selected  map[string]bool
}

func (e *Engine) view() view {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()
	return view{placement: e.placement, summary: e.summary, top: e.topCountries, selected: e.selected}
}

func withAlpha(c color.RGBA, a float64) color.NRGBA {
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(a * 255)}
}

func (e *Engine) drawMarkers(screen *ebiten.Image) {
	v := e.view()
	for _, s := range v.placement.Order {
		p := v.placement.Points[s]
		vector.DrawFilledCircle(screen, float32(p.X), float32(p.Y), markerRadius, p.Color, true)
		if v.selected[s] {
			vector.StrokeCircle(screen, float32(p.X), float32(p.Y), selectedRadius, 1.5, ColorSelected, true)
		}
	}
}

func (e *Engine) drawPulses(screen *ebiten.Image) {
	if e.pulseImage == nil {
		return
	}
	op := &ebiten.DrawImageOptions{}
	op.Blend = ebiten.BlendLighter
	imgW := e.pulseImage.Bounds().Dx()
	halfW := float64(imgW) / 2
	for _, p := range e.Anim.Pulses() {
		if p.Opacity <= 0 {
			continue
		}
		scale := p.Radius / float64(imgW) * 2.0
		op.GeoM.Reset()
		op.GeoM.Translate(-halfW, -halfW)
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(p.X, p.Y)
		r, g, b := float64(p.Color.R)/255.0, float64(p.Color.G)/255.0, float64(p.Color.B)/255.0
		op.ColorScale.Reset()
		op.ColorScale.Scale(float32(r*p.Opacity), float32(g*p.Opacity), float32(b*p.Opacity), float32(p.Opacity))
		screen.DrawImage(e.pulseImage, op)
	}
}

// drawTransmissions strokes the revealed part of each curve as short segments.
func (e *Engine) drawTransmissions(screen *ebiten.Image) {
	for _, t := range e.Anim.Transmissions() {
		if t.Progress <= 0 || t.Opacity <= 0 {
			continue
		}
		c := withAlpha(t.Color, t.Opacity)
		steps := int(float64(curveSegments)*t.Progress + 0.5)
		if steps < 1 {
			steps = 1
		}
		px, py := t.Point(0)
		for i := 1; i <= steps; i++ {
			x, y := t.Point(t.Progress * float64(i) / float64(steps))
			vector.StrokeLine(screen, float32(px), float32(py), float32(x), float32(y), 1.2, c, true)
			px, py = x, y
		}
	}
}
