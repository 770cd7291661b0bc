package indicators

// Window is a bounded FIFO of prices. It is not safe for concurrent use;
// callers hold their own lock.
type Window struct {
	values   []float64
	capacity int
}

// NewWindow builds a window that keeps at most capacity values.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{values: make([]float64, 0, capacity), capacity: capacity}
}

// Push appends a price, evicting the oldest one when full.
func (w *Window) Push(v float64) {
	if len(w.values) == w.capacity {
		copy(w.values, w.values[1:])
		w.values[len(w.values)-1] = v
		return
	}
	w.values = append(w.values, v)
}

// Values returns a copy of the window, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

func (w *Window) Len() int      { return len(w.values) }
func (w *Window) Capacity() int { return w.capacity }

// Reset drops every value.
func (w *Window) Reset() { w.values = w.values[:0] }
