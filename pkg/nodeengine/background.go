package nodeengine

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/nodefleet/fleetview/pkg/geo"
)

// InitPulseTexture builds the soft ring sprite that pulses are drawn with.
func (e *Engine) InitPulseTexture() {
	size := 128
	if e.Width > 2000 {
		size = 256
	}
	e.pulseImage = ebiten.NewImage(size, size)
	e.pulseImage.WritePixels(ringPixels(size, e.Width > 2000))
}

func ringPixels(size int, large bool) []byte {
	pixels := make([]byte, size*size*4)
	center, maxDist := float64(size)/2.0, float64(size)/2.0
	outer, inner := 0.9, 0.8
	if large {
		outer, inner = 0.94, 0.88
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			dist := math.Sqrt(dx*dx + dy*dy)
			if dist >= maxDist {
				continue
			}
			val := 0.0
			if dist > maxDist*outer {
				val = math.Cos(((dist - maxDist*(outer+((1-outer)/2))) / (maxDist * ((1 - outer) / 2))) * (math.Pi / 2))
			} else if dist > maxDist*inner {
				val = math.Sin(((dist - maxDist*inner) / (maxDist * (outer - inner))) * (math.Pi / 2))
			}
			off := (y*size + x) * 4
			pixels[off+3] = uint8(math.Max(0, math.Min(1, val)) * 255)
			pixels[off+0], pixels[off+1], pixels[off+2] = 255, 255, 255
		}
	}
	return pixels
}

// GenerateBackground rasterizes every country once into a static image.
func (e *Engine) GenerateBackground() {
	e.bgImage = ebiten.NewImageFromImage(e.renderBackground())
}

func (e *Engine) renderBackground() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, e.Width, e.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{ColorBackground}, image.Point{}, draw.Src)
	if e.World == nil {
		return img
	}
	for _, c := range e.World.Countries {
		for _, poly := range c.Polygons {
			e.fillPolygon(img, poly, ColorLand)
			for _, ring := range poly {
				e.drawRingFast(img, ring, ColorOutline)
			}
		}
	}
	return img
}

type point struct{ x, y float64 }

func (e *Engine) fillPolygon(img *image.RGBA, poly geo.Polygon, c color.RGBA) {
	if len(poly) == 0 {
		return
	}
	projectedRings := make([][]point, len(poly))
	minY, maxY := float64(e.Height), 0.0
	for i, ring := range poly {
		projectedRings[i] = make([]point, len(ring))
		for j, p := range ring {
			x, y := e.Proj.Project(p[0], p[1])
			projectedRings[i][j] = point{x, y}
			minY = math.Min(minY, y)
			maxY = math.Max(maxY, y)
		}
	}
	for y := int(minY); y <= int(maxY); y++ {
		if y < 0 || y >= e.Height {
			continue
		}
		var xs []int
		fy := float64(y)
		for _, ring := range projectedRings {
			for i := 0; i < len(ring); i++ {
				j := (i + 1) % len(ring)
				if (ring[i].y < fy && ring[j].y >= fy) || (ring[j].y < fy && ring[i].y >= fy) {
					nodeX := ring[i].x + (fy-ring[i].y)/(ring[j].y-ring[i].y)*(ring[j].x-ring[i].x)
					xs = append(xs, int(nodeX))
				}
			}
		}
		sort.Ints(xs)
		for i := 0; i < len(xs)-1; i += 2 {
			xStart, xEnd := xs[i], xs[i+1]
			if xStart < 0 {
				xStart = 0
			}
			if xEnd >= e.Width {
				xEnd = e.Width - 1
			}
			for x := xStart; x < xEnd; x++ {
				off := y*img.Stride + x*4
				img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = c.R, c.G, c.B, 255
			}
		}
	}
}

func (e *Engine) drawRingFast(img *image.RGBA, ring geo.Ring, c color.RGBA) {
	for i := 0; i < len(ring)-1; i++ {
		x1, y1 := e.Proj.Project(ring[i][0], ring[i][1])
		x2, y2 := e.Proj.Project(ring[i+1][0], ring[i+1][1])
		// Edges that wrap the antimeridian would streak across the map.
		if math.Abs(x2-x1) > float64(e.Width)/2 {
			continue
		}
		e.drawLineFast(img, int(x1), int(y1), int(x2), int(y2), c)
	}
}

func (e *Engine) drawLineFast(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx, dy := math.Abs(float64(x2-x1)), math.Abs(float64(y2-y1))
	sx, sy := -1, -1
	if x1 < x2 {
		sx = 1
	}
	if y1 < y2 {
		sy = 1
	}
	err := dx - dy
	for {
		if x1 >= 0 && x1 < e.Width && y1 >= 0 && y1 < e.Height {
			off := y1*img.Stride + x1*4
			img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = c.R, c.G, c.B, 255
		}
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}
