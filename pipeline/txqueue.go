package pipeline

import (
	"sync"
	"time"

	"github.com/named-data/ndnd/std/ndn"
)

// txEntry is one staged Interest: the encoded packet, its lifetime and the
// queue its result must be reported on.
type txEntry struct {
	interest *ndn.EncodedInterest
	lifetime time.Duration
	rx       *RxQueue
}

// txQueue is the staging queue between application workers and the pipeline
// worker. Multi-producer, single-consumer; the close/push handshake runs
// under one mutex so a push racing a stop either lands before the drain or
// is refused, never lost.
type txQueue struct {
	mu     sync.Mutex
	items  []txEntry
	closed bool
	signal chan struct{}
}

func newTxQueue() *txQueue {
	return &txQueue{
		signal: make(chan struct{}, 1),
	}
}

func (q *txQueue) push(entries ...txEntry) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, entries...)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *txQueue) pop() (txEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return txEntry{}, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}

// close refuses further pushes and returns everything still staged.
func (q *txQueue) close() []txEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	items := q.items
	q.items = nil
	return items
}
