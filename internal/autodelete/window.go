package autodelete

// deque - очередь с O(1) добавлением в конец и снятием с начала.
// Снятые элементы вырезаются из среза, когда их набирается больше половины.
type deque[T any] struct {
	items []T
	head  int
}

func (d *deque[T]) Len() int {
	return len(d.items) - d.head
}

func (d *deque[T]) PushBack(v T) {
	d.items = append(d.items, v)
}

// PushFront вставляет vs перед текущим началом, сохраняя их порядок.
func (d *deque[T]) PushFront(vs ...T) {
	if len(vs) == 0 {
		return
	}
	if d.head >= len(vs) {
		d.head -= len(vs)
		copy(d.items[d.head:], vs)
		return
	}
	rest := d.items[d.head:]
	items := make([]T, 0, len(vs)+len(rest))
	items = append(items, vs...)
	items = append(items, rest...)
	d.items = items
	d.head = 0
}

func (d *deque[T]) Front() (T, bool) {
	var zero T
	if d.Len() == 0 {
		return zero, false
	}
	return d.items[d.head], true
}

func (d *deque[T]) PopFront() (T, bool) {
	var zero T
	if d.Len() == 0 {
		return zero, false
	}
	v := d.items[d.head]
	d.items[d.head] = zero
	d.head++
	d.compact()
	return v, true
}

// Take снимает до n элементов с начала.
func (d *deque[T]) Take(n int) []T {
	if n > d.Len() {
		n = d.Len()
	}
	out := make([]T, n)
	for i := range out {
		out[i], _ = d.PopFront()
	}
	return out
}

// RemoveFunc удаляет элементы, для которых match возвращает true.
func (d *deque[T]) RemoveFunc(match func(T) bool) int {
	kept := d.items[:d.head]
	removed := 0
	for _, v := range d.items[d.head:] {
		if match(v) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	var zero T
	for i := len(kept); i < len(d.items); i++ {
		d.items[i] = zero
	}
	d.items = kept
	d.compact()
	return removed
}

// Items возвращает копию элементов от начала к концу.
func (d *deque[T]) Items() []T {
	out := make([]T, d.Len())
	copy(out, d.items[d.head:])
	return out
}

func (d *deque[T]) Reset(items []T) {
	d.items = append([]T(nil), items...)
	d.head = 0
}

func (d *deque[T]) compact() {
	if d.head == len(d.items) {
		d.items = d.items[:0]
		d.head = 0
		return
	}
	if d.head > 32 && d.head*2 > len(d.items) {
		n := copy(d.items, d.items[d.head:])
		var zero T
		for i := n; i < len(d.items); i++ {
			d.items[i] = zero
		}
		d.items = d.items[:n]
		d.head = 0
	}
}
