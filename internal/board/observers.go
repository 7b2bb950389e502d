package board

import "sync"

type observers struct {
	mu     sync.RWMutex
	nextID uint64
	fns    map[uint64]func(Change)
}

func newObservers() *observers {
	return &observers{fns: make(map[uint64]func(Change))}
}

func (o *observers) add(fn func(Change)) func() {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.fns[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.fns, id)
		o.mu.Unlock()
	}
}

func (o *observers) notify(c Change) {
	o.mu.RLock()
	fns := make([]func(Change), 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
