package nodes

import (
	"image/color"
	"time"
)

// ActiveWindow is how long after its last change a node still counts as active.
const ActiveWindow = 120 * time.Second

var (
	ColorCheckinActive   = color.RGBA{46, 204, 113, 255} // Green
	ColorCheckinInactive = color.RGBA{231, 76, 60, 255}  // Red
	ColorBareMetal       = color.RGBA{155, 89, 182, 255} // Purple
	ColorActive          = color.RGBA{0, 191, 255, 255}  // Sky Blue
	ColorInactive        = color.RGBA{120, 126, 140, 255}
)

// IsActive reports whether lastChanged lies within ActiveWindow of the current
// wall-clock time. It is evaluated on every call and never cached.
func IsActive(lastChanged time.Time) bool {
	return IsActiveAt(lastChanged, time.Now())
}

// IsActiveAt is IsActive against an explicit now. A difference of exactly
// ActiveWindow is inactive. A zero lastChanged is never active.
func IsActiveAt(lastChanged, now time.Time) bool {
	if lastChanged.IsZero() {
		return false
	}
	return now.Sub(lastChanged) < ActiveWindow
}

// MarkerColor picks the map marker color. Roles overlap in the input data, so the
// order matters: check-in role first, then bare-metal, then plain activity.
func MarkerColor(n NodePoint) color.RGBA {
	switch {
	case n.IsCheckinNode:
		if n.IsActive {
			return ColorCheckinActive
		}
		return ColorCheckinInactive
	case n.IsBM:
		return ColorBareMetal
	case n.IsActive:
		return ColorActive
	default:
		return ColorInactive
	}
}

// Role names the marker class MarkerColor picks, for text output.
func Role(n NodePoint) string {
	switch {
	case n.IsCheckinNode && n.IsActive:
		return "checkin-active"
	case n.IsCheckinNode:
		return "checkin-inactive"
	case n.IsBM:
		return "bare-metal"
	case n.IsActive:
		return "active"
	default:
		return "inactive"
	}
}

// Summary counts a batch by displayed role.
type Summary struct {
	Total, Active, Inactive int
	BareMetal, Checkin      int
}

// Classify summarizes a batch for the table views.
func Classify(points []NodePoint) Summary {
	var s Summary
	for _, p := range points {
		s.Total++
		if p.IsActive {
			s.Active++
		} else {
			s.Inactive++
		}
		if p.IsBM {
			s.BareMetal++
		}
		if p.IsCheckinNode {
			s.Checkin++
		}
	}
	return s
}
