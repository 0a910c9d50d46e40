package toollog

// ring is a fixed-size circular buffer. When full, Push overwrites the
// oldest element.
type ring[T any] struct {
	buf  []T
	size int
	head int // next write position
	full bool
}

func newRing[T any](size int) *ring[T] {
	if size <= 0 {
		size = DefaultCapacity
	}
	return &ring[T]{
		buf:  make([]T, size),
		size: size,
	}
}

func (r *ring[T]) push(v T) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.size
	if r.head == 0 {
		r.full = true
	}
}

// len returns the number of retained elements.
func (r *ring[T]) len() int {
	if r.full {
		return r.size
	}
	return r.head
}

// newest returns up to n elements, most recent first.
func (r *ring[T]) newest(n int) []T {
	if n > r.len() {
		n = r.len()
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, 0, n)
	idx := r.head
	for i := 0; i < n; i++ {
		idx = (idx - 1 + r.size) % r.size
		out = append(out, r.buf[idx])
	}
	return out
}

func (r *ring[T]) reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.full = false
}
