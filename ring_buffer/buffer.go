package ring_buffer

// Buffer is a fixed-capacity FIFO. Once full, every Add evicts the oldest value.
type Buffer[T any] struct {
	buffer []T
	head   int
	size   int
}

func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Buffer[T]{
		buffer: make([]T, capacity),
	}
}

func (r *Buffer[T]) Add(values ...T) {
	for _, v := range values {
		r.buffer[r.head] = v
		r.head = (r.head + 1) % len(r.buffer)

		if r.size < len(r.buffer) {
			r.size++
		}
	}
}

// Read returns the buffered values ordered oldest to newest.
func (r *Buffer[T]) Read() []T {
	values := make([]T, r.size)
	start := (r.head - r.size + len(r.buffer)) % len(r.buffer)

	for i := 0; i < r.size; i++ {
		values[i] = r.buffer[(start+i)%len(r.buffer)]
	}

	return values
}

// Last returns the most recently added value.
func (r *Buffer[T]) Last() (T, bool) {
	var zero T

	if r.size == 0 {
		return zero, false
	}

	return r.buffer[(r.head-1+len(r.buffer))%len(r.buffer)], true
}

func (r *Buffer[T]) Len() int {
	return r.size
}

func (r *Buffer[T]) Cap() int {
	return len(r.buffer)
}

func (r *Buffer[T]) Full() bool {
	return r.size == len(r.buffer)
}

func (r *Buffer[T]) Clear() {
	var zero T

	for i := 0; i < len(r.buffer); i++ {
		r.buffer[i] = zero
	}

	r.head = 0
	r.size = 0
}
