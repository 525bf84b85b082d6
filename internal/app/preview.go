package app

import "sync"

// preview fans encoded frames out to subscribers. Each subscriber holds at
// most one pending frame; older frames are dropped for slow readers.
type preview struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func newPreview() *preview {
	return &preview{subs: make(map[chan []byte]struct{})}
}

func (p *preview) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)

	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			p.mu.Unlock()
		})
	}
}

func (p *preview) active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs) > 0
}

// publish copies data to every subscriber.
func (p *preview) publish(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for ch := range p.subs {
		frame := make([]byte, len(data))
		copy(frame, data)

		select {
		case ch <- frame:
		default:
			// Replace the stale frame.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frame:
			default:
			}
		}
	}
}
