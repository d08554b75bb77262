package workspace

import (
	"context"
	"sync"
)

// connHolder shares one Backend across workers. Each handout carries the generation it was
// built in, so a worker that saw a transport failure only drops the backend it actually
// used; a backend another worker already rebuilt stays in place.
type connHolder struct {
	mu         sync.Mutex
	connect    Connector
	backend    Backend
	generation uint64
	onRebuild  func()
}

func newConnHolder(connect Connector, onRebuild func()) *connHolder {
	return &connHolder{connect: connect, onRebuild: onRebuild}
}

// get returns the current backend, building it if needed.
func (h *connHolder) get(ctx context.Context) (Backend, uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.backend != nil {
		return h.backend, h.generation, nil
	}
	b, err := h.connect(ctx)
	if err != nil {
		return nil, h.generation, err
	}
	h.backend = b
	h.generation++
	if h.generation > 1 && h.onRebuild != nil {
		h.onRebuild()
	}
	return b, h.generation, nil
}

// invalidate drops the backend if it is still the one from generation gen.
func (h *connHolder) invalidate(gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.backend == nil || h.generation != gen {
		return false
	}
	h.backend = nil
	return true
}

// current reports the live generation, for tests and logs.
func (h *connHolder) current() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.generation
}
