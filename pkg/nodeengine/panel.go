package nodeengine

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/nodefleet/fleetview/pkg/nodes"
	"github.com/nodefleet/fleetview/pkg/stream"
	"github.com/nodefleet/fleetview/pkg/ticklog"
)

type lineKind int

const (
	lineTick lineKind = iota
	lineLog
	lineMore
)

type panelLine struct {
	Text      string
	Kind      lineKind
	Tick      uint64
	Cursor    bool
	Highlight bool
}

const maxBodyLen = 60

// truncate shortens s to at most n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// panelLines flattens tick rows into at most maxLines display lines.
func panelLines(rows []ticklog.Row, cursor, maxLines int, hl *stream.Highlighter) []panelLine {
	var out []panelLine
	for i, r := range rows {
		if len(out) >= maxLines {
			break
		}
		marker := "▾"
		if !r.Expanded {
			marker = "▸"
		}
		out = append(out, panelLine{
			Text:   fmt.Sprintf("%s tick %d  (%d logs)", marker, r.Tick, len(r.Logs)),
			Kind:   lineTick,
			Tick:   r.Tick,
			Cursor: i == cursor,
		})
		for _, ev := range r.Visible {
			if len(out) >= maxLines {
				break
			}
			body := truncate(ev.Message.BodyString(), maxBodyLen)
			line := fmt.Sprintf("  #%d %s %s", ev.Message.LogID, ev.Message.LogTypename, body)
			out = append(out, panelLine{
				Text:      strings.TrimRight(line, " "),
				Kind:      lineLog,
				Tick:      r.Tick,
				Highlight: hl.Contains(line),
			})
		}
		if r.Hidden > 0 && len(out) < maxLines {
			out = append(out, panelLine{Text: fmt.Sprintf("  … %d more", r.Hidden), Kind: lineMore, Tick: r.Tick})
		}
	}
	return out
}

func (e *Engine) drawBox(screen *ebiten.Image, x, y, w, h, fontSize float64) {
	vector.DrawFilledRect(screen, float32(x), float32(y), float32(w), float32(h), ColorPanel, false)
	vector.StrokeRect(screen, float32(x), float32(y), float32(w), float32(h), 1, ColorOutline, false)
	vector.DrawFilledRect(screen, float32(x), float32(y), 4, float32(fontSize+10), ColorAccent, false)
}

func (e *Engine) drawText(screen *ebiten.Image, s string, src *text.GoTextFaceSource, size, x, y float64, c color.Color, alpha float32) {
	if src == nil {
		return
	}
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(c)
	op.ColorScale.ScaleAlpha(alpha)
	text.Draw(screen, s, &text.GoTextFace{Source: src, Size: size}, op)
}

func (e *Engine) drawTickPanel(screen *ebiten.Image) {
	margin, fontSize := 40.0, 14.0
	if e.Width > 2000 {
		margin, fontSize = 80.0, 28.0
	}
	boxW := float64(e.Width) * 0.32
	boxH := float64(e.Height) - 2*margin
	x := float64(e.Width) - margin - boxW
	y := margin
	e.drawBox(screen, x, y, boxW, boxH, fontSize)

	status := "waiting for stream"
	if e.Ticks.Subscribed() {
		status = fmt.Sprintf("live  %d ticks  %.1f ev/s", e.Ticks.Len(), e.EventRate())
	}
	e.drawText(screen, "TICK LOG", e.fontSource, fontSize*0.9, x+15, y+8, color.White, 0.6)
	e.drawText(screen, status, e.fontSource, fontSize*0.8, x+15+fontSize*6, y+9, color.White, 0.4)

	lineH := fontSize * 1.35
	maxLines := int((boxH - fontSize*3) / lineH)
	rows := e.Ticks.Rows()
	if e.cursor >= len(rows) && len(rows) > 0 {
		e.cursor = len(rows) - 1
	}
	ly := y + fontSize*2.5
	for _, l := range panelLines(rows, e.cursor, maxLines, e.Highlight) {
		var c color.Color = color.White
		alpha := float32(0.75)
		switch {
		case l.Cursor:
			c, alpha = ColorAccent, 1
		case l.Highlight:
			c, alpha = ColorHighlight, 1
		case l.Kind == lineMore:
			alpha = 0.4
		case l.Kind == lineLog:
			alpha = 0.6
		}
		e.drawText(screen, l.Text, e.monoSource, fontSize*0.85, x+15, ly, c, alpha)
		ly += lineH
	}
}

func (e *Engine) drawCountries(screen *ebiten.Image) {
	v := e.view()
	if len(v.top) == 0 {
		return
	}
	margin, fontSize := 40.0, 16.0
	if e.Width > 2000 {
		margin, fontSize = 80.0, 32.0
	}
	boxW := fontSize * 16
	boxH := fontSize*2.5 + float64(len(v.top))*fontSize*1.4
	x, y := margin, float64(e.Height)/2
	e.drawBox(screen, x-10, y-fontSize-15, boxW, boxH, fontSize)
	e.drawText(screen, "NODES BY COUNTRY", e.fontSource, fontSize*0.8, x+5, y-fontSize-5, color.White, 0.5)

	for i, cc := range v.top {
		name := truncate(cc.Name, 18)
		ly := y + fontSize*0.6 + float64(i)*fontSize*1.4
		e.drawText(screen, name, e.fontSource, fontSize, x, ly, color.White, 0.8)
		count := fmt.Sprintf("%d", cc.Count)
		e.drawText(screen, count, e.monoSource, fontSize, x+boxW-30-float64(len(count))*fontSize*0.6, ly, color.White, 0.8)
	}
}

func toastColor(l stream.Level) color.RGBA {
	switch l {
	case stream.LevelError:
		return nodes.ColorCheckinInactive
	case stream.LevelWarn:
		return ColorHighlight
	default:
		return ColorAccent
	}
}

func (e *Engine) drawToasts(screen *ebiten.Image) {
	if e.Toasts == nil {
		return
	}
	fontSize := 16.0
	if e.Width > 2000 {
		fontSize = 32.0
	}
	y := float64(e.Height) - fontSize*3
	for _, t := range e.Toasts.Active() {
		w := float64(len(t.Message))*fontSize*0.55 + 30
		x := (float64(e.Width) - w) / 2
		vector.DrawFilledRect(screen, float32(x), float32(y), float32(w), float32(fontSize*1.8), color.RGBA{0, 0, 0, 180}, false)
		vector.DrawFilledRect(screen, float32(x), float32(y), 4, float32(fontSize*1.8), toastColor(t.Level), false)
		e.drawText(screen, t.Message, e.fontSource, fontSize, x+15, y+fontSize*0.35, color.White, 0.9)
		y -= fontSize * 2.2
	}
}

func (e *Engine) drawLegend(screen *ebiten.Image) {
	margin, fontSize := 40.0, 14.0
	if e.Width > 2000 {
		margin, fontSize = 80.0, 28.0
	}
	v := e.view()
	items := []struct {
		Label string
		Color color.RGBA
		Count int
	}{
		{"ACTIVE", nodes.ColorActive, v.summary.Active},
		{"INACTIVE", nodes.ColorInactive, v.summary.Inactive},
		{"BARE METAL", nodes.ColorBareMetal, v.summary.BareMetal},
		{"CHECK-IN", nodes.ColorCheckinActive, v.summary.Checkin},
	}
	x, y := margin, margin
	swatch := fontSize * 0.8
	for _, it := range items {
		vector.DrawFilledCircle(screen, float32(x+swatch/2), float32(y+swatch/2), float32(swatch/2), it.Color, true)
		e.drawText(screen, fmt.Sprintf("%s  %d", it.Label, it.Count), e.fontSource, fontSize, x+swatch+10, y-2, color.White, 0.8)
		y += fontSize * 1.6
	}
	e.drawText(screen, e.now().UTC().Format("15:04:05 UTC"), e.monoSource, fontSize, x, y+fontSize*0.5, color.White, 0.5)
}
