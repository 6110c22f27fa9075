// Package nodes holds the node view-models shared by the map, the tables and the
// stream client, together with the pure classification helpers that derive
// display state from them.
package nodes

import "time"

// NodePoint is a plottable node. A batch of NodePoints is built fresh from every
// snapshot and never mutated afterwards.
type NodePoint struct {
	Server        string
	Lat, Lon      float64
	IsActive      bool
	IsBM          bool
	IsCheckinNode bool
	Type          string
	LastCheckinAt time.Time
}

// Batch is one immutable snapshot of NodePoints. ID increases with every
// refresh and is what consumers compare to detect a new batch.
type Batch struct {
	ID     uint64
	Points []NodePoint
	At     time.Time
}

// HasLocation reports whether the point carries usable coordinates.
func (n NodePoint) HasLocation() bool {
	return n.Lat != 0 || n.Lon != 0
}

// BobStatus is a Bob node as reported by the status feed. CurrentFetchingTick
// only moves forward and drives candidate selection for tick-log streaming.
type BobStatus struct {
	Server              string
	CurrentFetchingTick uint64
	LastTickChanged     time.Time
	Lat, Lon            float64
}

// LiteStatus is a Lite node as reported by the status feed.
type LiteStatus struct {
	Server          string
	Tick            uint64
	LastTickChanged time.Time
}
