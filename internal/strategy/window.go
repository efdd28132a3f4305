package strategy

import (
	"time"

	"options-spread-lab/internal/domain"
)

// extremeWindow tracks the min (or max) price over a sliding time window using
// a monotonic deque. Push and Extreme are O(1) amortized. The window holds
// every pushed tick with timestamp >= latest-length.
type extremeWindow struct {
	length  time.Duration
	keepMin bool

	// candidates ordered by timestamp; prices strictly increasing (min) or
	// strictly decreasing (max) from head
	buf  []domain.PricePoint
	head int
}

func newExtremeWindow(length time.Duration, keepMin bool) *extremeWindow {
	return &extremeWindow{length: length, keepMin: keepMin}
}

// dominates reports whether a makes b irrelevant as a future extreme.
func (w *extremeWindow) dominates(a, b float64) bool {
	if w.keepMin {
		return a <= b
	}
	return a >= b
}

// Push adds a tick. Ticks must arrive in timestamp order.
func (w *extremeWindow) Push(p domain.PricePoint) {
	for len(w.buf) > w.head && w.dominates(p.Price, w.buf[len(w.buf)-1].Price) {
		w.buf = w.buf[:len(w.buf)-1]
	}
	w.buf = append(w.buf, p)

	cutoff := p.Timestamp.Add(-w.length)
	for w.buf[w.head].Timestamp.Before(cutoff) {
		w.head++
	}

	// compact once the dead prefix dominates the buffer
	if w.head > 32 && w.head*2 > len(w.buf) {
		n := copy(w.buf, w.buf[w.head:])
		w.buf = w.buf[:n]
		w.head = 0
	}
}

// Extreme returns the current window extreme. ok is false before any Push.
func (w *extremeWindow) Extreme() (price float64, ok bool) {
	if w.head >= len(w.buf) {
		return 0, false
	}
	return w.buf[w.head].Price, true
}
