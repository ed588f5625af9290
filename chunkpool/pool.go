// Package chunkpool implements a size-keyed recycling store for chunk
// handles. Chunks that stop being displayed are parked under the size they
// were built for and handed back, oldest first, the next time a chunk of that
// size is needed.
package chunkpool

// Pool is a FIFO recycling store keyed by chunk size.
//
// The zero value is an empty, unbounded pool ready to use. A Pool is meant to
// be driven by a single goroutine; concurrent use requires external
// synchronization.
type Pool[K comparable, H any] struct {
	// Name labels the pool metrics. Defaults to "default".
	Name string

	// MaxPerSize caps the number of handles queued under a single size. Zero
	// means unbounded. When a recycle overflows the cap, the oldest handle of
	// that size is dropped and passed to OnEvict.
	MaxPerSize int

	// OnEvict is called with handles dropped because of MaxPerSize or Clear.
	OnEvict func(handle H, size K)

	bySize map[K][]H
	total  int
}

// RecycleChunk appends the handle to the queue of the given size, creating
// the queue if it does not exist.
func (p *Pool[K, H]) RecycleChunk(handle H, size K) {
	if p.bySize == nil {
		p.bySize = make(map[K][]H)
	}

	p.bySize[size] = append(p.bySize[size], handle)
	p.total++
	instrumentRecycle(p.name())

	if p.MaxPerSize > 0 && len(p.bySize[size]) > p.MaxPerSize {
		evicted, _ := p.pop(size)
		instrumentEvict(p.name(), 1)
		if p.OnEvict != nil {
			p.OnEvict(evicted, size)
		}
	}

	instrumentSize(p.name(), p.total)
}

// RequestChunk removes and returns the oldest handle queued for the given
// size. It returns false when no handle of that size is available.
func (p *Pool[K, H]) RequestChunk(size K) (H, bool) {
	h, ok := p.pop(size)
	instrumentRequest(p.name(), ok)
	if ok {
		instrumentSize(p.name(), p.total)
	}
	return h, ok
}

// GetQueue returns a copy of the handles queued for the given size, oldest
// first. It is meant for inspection only.
func (p *Pool[K, H]) GetQueue(size K) []H {
	q := p.bySize[size]
	res := make([]H, len(q))
	copy(res, q)
	return res
}

// Len returns the number of handles queued for the given size.
func (p *Pool[K, H]) Len(size K) int {
	return len(p.bySize[size])
}

// Total returns the number of handles queued across all sizes.
func (p *Pool[K, H]) Total() int {
	return p.total
}

// Sizes returns the sizes that currently have at least one queued handle.
// The order is unspecified.
func (p *Pool[K, H]) Sizes() []K {
	sizes := make([]K, 0, len(p.bySize))
	for k, q := range p.bySize {
		if len(q) != 0 {
			sizes = append(sizes, k)
		}
	}
	return sizes
}

// Drain removes and returns every handle queued for the given size, oldest
// first.
func (p *Pool[K, H]) Drain(size K) []H {
	q := p.bySize[size]
	delete(p.bySize, size)
	p.total -= len(q)
	instrumentSize(p.name(), p.total)
	return q
}

// Clear empties the pool. Every dropped handle is passed to OnEvict and
// counted as evicted.
func (p *Pool[K, H]) Clear() {
	instrumentEvict(p.name(), p.total)

	for size, q := range p.bySize {
		if p.OnEvict != nil {
			for _, h := range q {
				p.OnEvict(h, size)
			}
		}
		delete(p.bySize, size)
	}
	p.total = 0
	instrumentSize(p.name(), p.total)
}

func (p *Pool[K, H]) pop(size K) (H, bool) {
	var zero H

	q := p.bySize[size]
	if len(q) == 0 {
		return zero, false
	}

	h := q[0]
	q[0] = zero
	if len(q) == 1 {
		delete(p.bySize, size)
	} else {
		p.bySize[size] = q[1:]
	}
	p.total--
	return h, true
}

func (p *Pool[K, H]) name() string {
	if p.Name == "" {
		return "default"
	}
	return p.Name
}
