// Package anim drives the map's liveness effects: a pulse that loops forever on
// every placed node and bursts of curved transmissions between active nodes.
// State is advanced by Update and has no timers of its own, so stopping the
// engine cannot leave anything running.
package anim

import (
	"image/color"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/nodefleet/fleetview/pkg/geo"
)

const (
	PulseMinRadius    = 2.0
	PulseMaxRadius    = 8.0
	PulseStartOpacity = 0.6
	PulseMinDuration  = 2000 * time.Millisecond
	PulseMaxDuration  = 3000 * time.Millisecond

	BurstMinInterval = 200 * time.Millisecond
	BurstMaxInterval = 500 * time.Millisecond
	BurstMinSize     = 3
	BurstMaxSize     = 7

	RevealMinDuration   = 800 * time.Millisecond
	RevealMaxDuration   = 1600 * time.Millisecond
	FadeDuration        = 300 * time.Millisecond
	TransmissionOpacity = 0.8

	// Bursts missed by more than this (a stalled frame loop) are dropped
	// instead of replayed back to back.
	maxBurstLag = 2 * time.Second
)

type Pulse struct {
	Server    string
	X, Y      float64
	Color     color.RGBA
	StartTime time.Time
	Duration  time.Duration

	Radius, Opacity float64
}

type Transmission struct {
	From, To  string
	P0, C, P1 [2]float64
	Color     color.RGBA
	StartTime time.Time
	Reveal    time.Duration

	// Progress is the revealed fraction of the path, 0 to 1.
	Progress float64
	Opacity  float64
}

// Point evaluates the transmission's quadratic Bézier at s in [0, 1].
func (t *Transmission) Point(s float64) (x, y float64) {
	u := 1 - s
	x = u*u*t.P0[0] + 2*u*s*t.C[0] + s*s*t.P1[0]
	y = u*u*t.P0[1] + 2*u*s*t.C[1] + s*s*t.P1[1]
	return x, y
}

// ControlPoint lifts the midpoint of a and b by a quarter of their distance.
func ControlPoint(a, b [2]float64) [2]float64 {
	mx, my := (a[0]+b[0])/2, (a[1]+b[1])/2
	d := math.Hypot(b[0]-a[0], b[1]-a[1])
	return [2]float64{mx, my - d/4}
}

type Engine struct {
	mu            sync.Mutex
	rng           *rand.Rand
	batch         uint64
	pulses        []Pulse
	transmissions []Transmission
	active        []geo.PlacedPoint
	nextBurst     time.Time
	stopped       bool

	// Bursts counts fired bursts; Skipped counts bursts with too few nodes.
	Bursts, Skipped int
}

// NewEngine returns an idle engine. A nil rng uses the package-level source.
func NewEngine(rng *rand.Rand) *Engine {
	return &Engine{rng: rng, stopped: true}
}

func (e *Engine) int63n(n int64) int64 {
	if e.rng != nil {
		return e.rng.Int63n(n)
	}
	return rand.Int63n(n)
}

func (e *Engine) intn(n int) int {
	if e.rng != nil {
		return e.rng.Intn(n)
	}
	return rand.Intn(n)
}

func (e *Engine) between(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(e.int63n(int64(hi-lo)+1))
}

// Reset throws away all animation state and starts over from pl. Nothing is
// carried across batches.
func (e *Engine) Reset(batch uint64, pl geo.Placement, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batch = batch
	e.stopped = false
	e.transmissions = nil
	e.pulses = make([]Pulse, 0, len(pl.Order))
	e.active = pl.Active()
	for _, s := range pl.Order {
		p := pl.Points[s]
		e.pulses = append(e.pulses, Pulse{
			Server:    s,
			X:         p.X,
			Y:         p.Y,
			Color:     p.Color,
			StartTime: now,
			Duration:  e.between(PulseMinDuration, PulseMaxDuration),
			Radius:    PulseMinRadius,
			Opacity:   PulseStartOpacity,
		})
	}
	e.nextBurst = now.Add(e.between(BurstMinInterval, BurstMaxInterval))
}

// Batch returns the identity of the batch the engine was last reset with.
func (e *Engine) Batch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batch
}

// Stop clears every pulse and transmission. Update is a no-op until the next
// Reset.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	e.pulses = nil
	e.transmissions = nil
	e.active = nil
}

func (e *Engine) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// Update advances every animation to now and fires any bursts that are due.
func (e *Engine) Update(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}

	for i := range e.pulses {
		p := &e.pulses[i]
		elapsed := now.Sub(p.StartTime)
		if elapsed >= p.Duration {
			cycles := elapsed / p.Duration
			p.StartTime = p.StartTime.Add(cycles * p.Duration)
			elapsed -= cycles * p.Duration
		}
		if elapsed < 0 {
			elapsed = 0
		}
		f := float64(elapsed) / float64(p.Duration)
		p.Radius = PulseMinRadius + (PulseMaxRadius-PulseMinRadius)*f
		p.Opacity = PulseStartOpacity * (1 - f)
	}

	if now.Sub(e.nextBurst) > maxBurstLag {
		e.nextBurst = now
	}
	for !now.Before(e.nextBurst) {
		e.fireBurst(e.nextBurst)
		e.nextBurst = e.nextBurst.Add(e.between(BurstMinInterval, BurstMaxInterval))
	}

	live := e.transmissions[:0]
	for _, t := range e.transmissions {
		elapsed := now.Sub(t.StartTime)
		switch {
		case elapsed >= t.Reveal+FadeDuration:
			continue
		case elapsed >= t.Reveal:
			t.Progress = 1
			t.Opacity = TransmissionOpacity * (1 - float64(elapsed-t.Reveal)/float64(FadeDuration))
		case elapsed < 0:
			t.Progress = 0
			t.Opacity = TransmissionOpacity
		default:
			t.Progress = float64(elapsed) / float64(t.Reveal)
			t.Opacity = TransmissionOpacity
		}
		live = append(live, t)
	}
	e.transmissions = live
}

func (e *Engine) fireBurst(at time.Time) {
	if len(e.active) < 2 {
		e.Skipped++
		return
	}
	e.Bursts++
	n := BurstMinSize + e.intn(BurstMaxSize-BurstMinSize+1)
	for i := 0; i < n; i++ {
		a := e.intn(len(e.active))
		b := e.intn(len(e.active))
		for b == a {
			b = e.intn(len(e.active))
		}
		from, to := e.active[a], e.active[b]
		p0 := [2]float64{from.X, from.Y}
		p1 := [2]float64{to.X, to.Y}
		e.transmissions = append(e.transmissions, Transmission{
			From:      from.Server,
			To:        to.Server,
			P0:        p0,
			C:         ControlPoint(p0, p1),
			P1:        p1,
			Color:     from.Color,
			StartTime: at,
			Reveal:    e.between(RevealMinDuration, RevealMaxDuration),
			Opacity:   TransmissionOpacity,
		})
	}
}

// Pulses returns a copy of the current pulse state.
func (e *Engine) Pulses() []Pulse {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Pulse, len(e.pulses))
	copy(out, e.pulses)
	return out
}

// Transmissions returns a copy of the in-flight transmissions.
func (e *Engine) Transmissions() []Transmission {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Transmission, len(e.transmissions))
	copy(out, e.transmissions)
	return out
}
