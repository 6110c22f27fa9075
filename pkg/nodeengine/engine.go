// Package nodeengine renders the live fleet map with ebiten: country fills,
// node markers, the pulse and transmission animation, the tick-log panel and
// on-screen notices.
package nodeengine

import (
	"bytes"
	"context"
	"image/color"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/nodefleet/fleetview/pkg/anim"
	"github.com/nodefleet/fleetview/pkg/geo"
	"github.com/nodefleet/fleetview/pkg/metrics"
	"github.com/nodefleet/fleetview/pkg/nodes"
	"github.com/nodefleet/fleetview/pkg/state"
	"github.com/nodefleet/fleetview/pkg/stream"
	"github.com/nodefleet/fleetview/pkg/ticklog"
)

var (
	ColorBackground = color.RGBA{8, 10, 15, 255}
	ColorLand       = color.RGBA{26, 29, 35, 255}
	ColorOutline    = color.RGBA{36, 42, 53, 255}
	ColorPanel      = color.RGBA{0, 0, 0, 100}
	ColorAccent     = color.RGBA{0, 191, 255, 255}
	ColorHighlight  = color.RGBA{255, 214, 10, 255}
	ColorSelected   = color.RGBA{255, 255, 255, 220}
)

type Engine struct {
	Width, Height int
	FPS           int

	FrameCaptureDir string
	Debug           bool

	World     *geo.World
	Proj      geo.Projection
	Placer    *geo.Placer
	Locator   *geo.Locator
	Anim      *anim.Engine
	Ticks     *ticklog.Aggregator
	Toasts    *stream.Toasts
	Highlight *stream.Highlighter
	Metrics   *metrics.Metrics
	Store     state.Store

	batchMu      sync.Mutex
	pending      *nodes.Batch
	batchID      uint64
	placement    geo.Placement
	summary      nodes.Summary
	topCountries []geo.CountryCount
	selected     map[string]bool

	statsMu   sync.Mutex
	eventRate float64

	bgImage    *ebiten.Image
	pulseImage *ebiten.Image
	fontSource *text.GoTextFaceSource
	monoSource *text.GoTextFaceSource

	showPanel   bool
	cursor      int
	captureNext bool

	now func() time.Time
}

// NewEngine wires a renderer for world drawn through proj. rng seeds node
// jitter and animation timing; nil uses the package-level source.
func NewEngine(width, height int, world *geo.World, proj geo.Projection, rng *rand.Rand) *Engine {
	s, _ := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	m, _ := text.NewGoTextFaceSource(bytes.NewReader(gomono.TTF))

	return &Engine{
		Width:      width,
		Height:     height,
		FPS:        30,
		World:      world,
		Proj:       proj,
		Placer:     geo.NewPlacer(world, proj, rng),
		Anim:       anim.NewEngine(rng),
		Ticks:      ticklog.NewAggregator(),
		Toasts:     stream.NewToasts(6*time.Second, 5),
		selected:   make(map[string]bool),
		fontSource: s,
		monoSource: m,
		showPanel:  true,
		now:        time.Now,
	}
}

// Notify implements stream.Notifier by queueing an on-screen toast.
func (e *Engine) Notify(level stream.Level, msg string) {
	if e.Toasts != nil {
		e.Toasts.Notify(level, msg)
	}
}

// SubmitBatch hands a new snapshot to the render loop. Only the latest pending
// batch is kept.
func (e *Engine) SubmitBatch(b nodes.Batch) {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()
	e.pending = &b
}

// SetSelected marks servers to ring on the map.
func (e *Engine) SetSelected(servers []string) {
	sel := make(map[string]bool, len(servers))
	for _, s := range servers {
		sel[s] = true
	}
	e.batchMu.Lock()
	e.selected = sel
	e.batchMu.Unlock()
}

// applyPending re-places everything and restarts the animation when the
// pending batch is new. Nothing from the previous batch is reused. The batch ID
// is claimed under the lock, so a batch is applied once even if callers race.
func (e *Engine) applyPending(now time.Time) bool {
	e.batchMu.Lock()
	b := e.pending
	e.pending = nil
	if b == nil || b.ID == e.batchID {
		e.batchMu.Unlock()
		return false
	}
	e.batchID = b.ID
	e.batchMu.Unlock()

	points := b.Points
	if e.Locator != nil {
		points = e.Locator.Fill(points)
	}
	pl := e.Placer.Place(points)
	summary := nodes.Classify(points)
	top := pl.TopCountries(e.World, 8)

	e.batchMu.Lock()
	if e.batchID != b.ID {
		// A newer batch was claimed while this one was being placed.
		e.batchMu.Unlock()
		return false
	}
	e.placement = pl
	e.summary = summary
	e.topCountries = top
	e.batchMu.Unlock()

	e.Anim.Reset(b.ID, pl, now)
	if e.Metrics != nil {
		e.Metrics.SetSummary(summary)
		e.Metrics.SetPlacement(pl)
	}
	log.Printf("[SNAPSHOT] Batch %d: %d nodes, %d placed, %d in no country", b.ID, len(points), pl.Len(), len(pl.Excluded))
	return true
}

func (e *Engine) Update() error {
	now := e.now()
	e.handleInput()
	e.applyPending(now)
	e.Anim.Update(now)
	return nil
}

func (e *Engine) handleInput() {
	if inpututil.IsKeyJustPressed(ebiten.KeyC) {
		e.captureNext = true
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyT) {
		e.showPanel = !e.showPanel
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDown) {
		e.cursor++
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyUp) && e.cursor > 0 {
		e.cursor--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		e.toggleCursor()
	}
}

// toggleCursor flips the tick row under the cursor.
func (e *Engine) toggleCursor() {
	rows := e.Ticks.View()
	if len(rows) == 0 {
		return
	}
	if e.cursor >= len(rows) {
		e.cursor = len(rows) - 1
	}
	e.Ticks.Toggle(rows[e.cursor].Tick)
}

func (e *Engine) Draw(screen *ebiten.Image) {
	if e.bgImage != nil {
		screen.DrawImage(e.bgImage, nil)
	} else {
		screen.Fill(ColorBackground)
	}
	now := e.now()

	e.drawTransmissions(screen)
	e.drawPulses(screen)
	e.drawMarkers(screen)
	e.drawCountries(screen)
	if e.showPanel {
		e.drawTickPanel(screen)
	}
	e.drawToasts(screen)
	e.drawLegend(screen)

	if e.captureNext {
		e.captureNext = false
		e.captureFrame(screen, "manual", now)
	}
}

func (e *Engine) Layout(w, h int) (int, int) { return e.Width, e.Height }

// Close stops the animation and releases the GeoIP database.
func (e *Engine) Close() {
	e.Anim.Stop()
	if e.Locator != nil {
		if err := e.Locator.Close(); err != nil {
			log.Printf("[GEO] Error closing GeoIP database: %v", err)
		}
	}
}

// Run blocks in the ebiten loop until the window closes or ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	g := &runner{Engine: e, ctx: ctx}
	ebiten.SetTPS(e.FPS)
	return ebiten.RunGame(g)
}

type runner struct {
	*Engine
	ctx context.Context
}

func (r *runner) Update() error {
	if r.ctx.Err() != nil {
		return ebiten.Termination
	}
	return r.Engine.Update()
}
