package recording

import "sync"

const (
	// CancelWidthFraction applies when the control reports its width.
	CancelWidthFraction = 0.3
	// CancelAbsolutePixels applies to entry surfaces without a known width.
	CancelAbsolutePixels = 100.0
)

// ShouldCancel reports whether a horizontal drag has moved further left than threshold.
func ShouldCancel(deltaX, threshold float64) bool {
	return deltaX < -threshold
}

// ThresholdFor picks the cancel threshold for a control of the given width.
func ThresholdFor(width float64) float64 {
	if width > 0 {
		return width * CancelWidthFraction
	}
	return CancelAbsolutePixels
}

// Gate allows at most one recording flow open at a time. One Gate is shared
// by every controller that can show a recording UI for the same user.
type Gate struct {
	mu   sync.Mutex
	open bool
}

func NewGate() *Gate {
	return &Gate{}
}

// TryOpen claims the gate; false if a flow is already open.
func (g *Gate) TryOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return false
	}
	g.open = true
	return true
}

func (g *Gate) Close() {
	g.mu.Lock()
	g.open = false
	g.mu.Unlock()
}

func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}
