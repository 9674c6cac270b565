package inference

import "context"

// pool hands out a fixed set of items, one borrower at a time per item.
type pool[T any] struct {
	items chan T
	size  int
}

func newPool[T any](items []T) *pool[T] {
	p := &pool[T]{items: make(chan T, len(items)), size: len(items)}
	for _, it := range items {
		p.items <- it
	}
	return p
}

// acquire blocks until an item is free or ctx is done.
func (p *pool[T]) acquire(ctx context.Context) (T, error) {
	select {
	case it := <-p.items:
		return it, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (p *pool[T]) release(it T) {
	p.items <- it
}

// drain waits for every item to be released and returns them.
func (p *pool[T]) drain() []T {
	out := make([]T, 0, p.size)
	for len(out) < p.size {
		out = append(out, <-p.items)
	}
	return out
}
