package aggregator

import "PairPulse/internal/domain/models"

// barRing is a fixed-capacity FIFO of sealed bars; the oldest bar is evicted on overflow.
type barRing struct {
	buf   []models.Bar
	start int
	n     int
}

func newBarRing(capacity int) *barRing {
	if capacity < 1 {
		capacity = 1
	}
	return &barRing{buf: make([]models.Bar, capacity)}
}

func (r *barRing) push(b models.Bar) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = b
		r.n++
		return
	}
	r.buf[r.start] = b
	r.start = (r.start + 1) % len(r.buf)
}

func (r *barRing) len() int { return r.n }

// last copies up to n most recent bars in chronological order.
func (r *barRing) last(n int) []models.Bar {
	if n <= 0 || n > r.n {
		n = r.n
	}
	out := make([]models.Bar, n)
	first := r.n - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+first+i)%len(r.buf)]
	}
	return out
}

func (r *barRing) newest() (models.Bar, bool) {
	if r.n == 0 {
		return models.Bar{}, false
	}
	return r.buf[(r.start+r.n-1)%len(r.buf)], true
}
