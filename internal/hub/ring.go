package hub

import "tandem/internal/event"

// ring is a fixed-capacity buffer holding the most recently published
// events for one agent. Appending past capacity overwrites the oldest
// entry.
type ring struct {
	buf   []event.Event
	pos   int // next write index
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]event.Event, capacity)}
}

func (r *ring) append(ev event.Event) {
	r.buf[r.pos] = ev
	r.pos = (r.pos + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// since returns the retained events with seq greater than the given
// value, oldest first.
func (r *ring) since(seq uint64) []event.Event {
	if r.count == 0 {
		return nil
	}
	start := r.pos - r.count
	if start < 0 {
		start += len(r.buf)
	}
	var out []event.Event
	for i := 0; i < r.count; i++ {
		ev := r.buf[(start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
