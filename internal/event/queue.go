package event

import "sync/atomic"

// DefaultQueueDepth is sized so a chatty child cannot fill the queue
// between two control loop ticks.
const DefaultQueueDepth = 1024

// Queue is a multi-producer single-consumer FIFO. Producers never block:
// when the buffer is full the event is dropped and counted, because a
// stalled consumer must not back-pressure into a kill/stop worker.
type Queue struct {
	ch      chan Event
	dropped atomic.Uint64
	onDrop  func()
}

func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Queue{ch: make(chan Event, depth)}
}

// SetDropHook installs a callback invoked on each dropped event.
// Must be called before producers start.
func (q *Queue) SetDropHook(fn func()) { q.onDrop = fn }

func (q *Queue) Publish(e Event) {
	select {
	case q.ch <- e:
	default:
		q.dropped.Add(1)
		if q.onDrop != nil {
			q.onDrop()
		}
	}
}

// Drain returns all currently queued events in emission order without
// blocking.
func (q *Queue) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-q.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

// Dropped reports how many events were discarded on a full queue.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
