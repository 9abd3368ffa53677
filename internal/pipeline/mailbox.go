package pipeline

import "sync"

// mailbox is an unbounded FIFO between the job and its consumer. Producers
// never block, so a cancel from the interaction context cannot stall on a
// slow reader. A forwarder goroutine drains the queue into the run's
// channel and closes it after the last event.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// push appends ev. Events pushed after close are dropped.
func (m *mailbox) push(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.queue = append(m.queue, ev)
	m.cond.Signal()
	return true
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// forward delivers queued events to out in order and closes out once the
// mailbox is closed and drained.
func (m *mailbox) forward(out chan<- Event) {
	defer close(out)
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		ev := m.queue[0]
		m.queue[0] = Event{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		out <- ev
	}
}
