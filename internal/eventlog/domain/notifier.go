package domain

import "sync"

// Broadcaster despierta a todos los que esperan nuevos datos en una partición.
// Wait devuelve un canal que se cierra en el siguiente Broadcast.
type Broadcaster struct {
	mu sync.Mutex
	ch chan struct{}
}

func (b *Broadcaster) Wait() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ch == nil {
		b.ch = make(chan struct{})
	}
	return b.ch
}

func (b *Broadcaster) Broadcast() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ch != nil {
		close(b.ch)
		b.ch = nil
	}
}
