// Package pipeline implements the Interest pipeline core: a pending
// Interest table keyed by LP PIT token, a congestion window over outbound
// Interests, and the demultiplexing of Data, Nack and timeout events to the
// per-worker receive queues.
package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/named-data/ndnd/std/log"
	"github.com/named-data/ndnd/std/ndn"
	spec "github.com/named-data/ndnd/std/ndn/spec_2022"

	"github.com/ndn-dise/ndnc-go/congestion"
	"github.com/ndn-dise/ndnc-go/face"
)

// worker wakeup period; also drives the expiration scan
const tickInterval = 2 * time.Millisecond

// rttSampler is implemented by windows that track a round-trip estimate.
type rttSampler interface {
	AddRTTSample(sample time.Duration)
}

// pendingInterest is one PIT entry. The rx pointer is non-owning: the entry
// never outlives the worker that owns the queue, because Stop drains all
// entries before workers join.
type pendingInterest struct {
	interest *ndn.EncodedInterest
	lifetime time.Duration
	rx       *RxQueue
	sentAt   time.Time
}

// Pipeline is the only interface application workers see. One internal
// worker goroutine owns the PIT and the congestion window; application
// workers reach it through the staging queue, and the face receive
// goroutine through the frame queue. No lock guards the PIT.
type Pipeline struct {
	face    face.Face
	handler *face.Handler
	window  congestion.Window
	rtt     rttSampler

	pit map[uint64]*pendingInterest

	staging *txQueue
	frames  chan []byte

	started    atomic.Bool
	stopping   atomic.Bool
	faceBroken atomic.Bool
	stopCh     chan struct{}
	doneCh     chan struct{}
	stopOnce   sync.Once
}

func New(f face.Face, window congestion.Window) *Pipeline {
	p := &Pipeline{
		face:    f,
		window:  window,
		pit:     make(map[uint64]*pendingInterest),
		staging: newTxQueue(),
		frames:  make(chan []byte, 1024),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	p.handler = face.NewHandler(f, p)
	p.rtt, _ = window.(rttSampler)
	return p
}

// log identifier
func (p *Pipeline) String() string {
	return "pipeline"
}

// Start opens the face and launches the pipeline worker.
func (p *Pipeline) Start() error {
	p.face.OnPacket(p.onFrame)
	p.face.OnError(p.onFaceError)

	if !p.face.IsRunning() {
		if err := p.face.Open(); err != nil {
			return err
		}
	}

	p.started.Store(true)
	go p.run()
	return nil
}

// Stop flips the stop flag, joins the worker and terminates every pending
// entry with ErrNetwork so no worker blocks forever. Idempotent; callable
// from any goroutine.
func (p *Pipeline) Stop() {
	p.stopping.Store(true)

	if !p.started.Load() {
		// never started: nothing to join, but staged entries still answer
		for _, e := range p.staging.close() {
			e.rx.Push(newErrorResult(e.interest.FinalName, ErrNetwork))
		}
		return
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

// IsValid returns false iff the pipeline is stopped or the transport
// reported a fatal error.
func (p *Pipeline) IsValid() bool {
	return !p.stopping.Load() && !p.faceBroken.Load()
}

// Enqueue stages one Interest. The Interest is guaranteed to terminate with
// exactly one result on rx: Data, Nack or timeout once sent, or ErrNetwork
// if the transport refuses it or the pipeline stops first. Returns false
// only if the pipeline is stopped or the transport is broken.
func (p *Pipeline) Enqueue(interest *ndn.EncodedInterest, lifetime time.Duration, rx *RxQueue) bool {
	if !p.IsValid() {
		return false
	}
	return p.staging.push(txEntry{interest: interest, lifetime: lifetime, rx: rx})
}

// EnqueueBatch stages a batch of Interests with Enqueue semantics.
func (p *Pipeline) EnqueueBatch(batch []*ndn.EncodedInterest, lifetime time.Duration, rx *RxQueue) bool {
	if !p.IsValid() {
		return false
	}
	entries := make([]txEntry, len(batch))
	for i, interest := range batch {
		entries[i] = txEntry{interest: interest, lifetime: lifetime, rx: rx}
	}
	return p.staging.push(entries...)
}

// onFrame runs on the face receive goroutine; the worker is the only
// goroutine that touches the PIT, so frames are posted, not handled here.
func (p *Pipeline) onFrame(frame []byte) {
	frameCopy := make([]byte, len(frame))
	copy(frameCopy, frame)

	select {
	case p.frames <- frameCopy:
	case <-p.stopCh:
	}
}

func (p *Pipeline) onFaceError(err error) {
	log.Error(p, "Fatal transport error", "err", err)
	p.faceBroken.Store(true)
	go p.Stop()
}

func (p *Pipeline) run() {
	defer close(p.doneCh)
	defer p.face.Close()

	tick := time.NewTicker(tickInterval)
	defer tick.Stop()

	for {
		select {
		case <-p.stopCh:
			p.drain()
			return
		case frame := <-p.frames:
			p.handler.Dispatch(frame)
		case <-tick.C:
			p.handler.ScanTimeouts(time.Now())
			metricWindow.Set(float64(p.window.Size()))
			metricPending.Set(float64(len(p.pit)))
		case <-p.staging.signal:
		}

		p.fill()
	}
}

// fill sends staged Interests while the congestion window has room. Staged
// entries beyond the window stay queued; they are never discarded.
func (p *Pipeline) fill() {
	for len(p.pit) < p.window.Size() {
		entry, ok := p.staging.pop()
		if !ok {
			return
		}
		p.express(entry)
	}
}

func (p *Pipeline) express(e txEntry) {
	token, err := p.handler.ExpressInterest(e.interest, e.lifetime)
	if err != nil {
		log.Warn(p, "Failed to send interest", "err", err, "name", e.interest.FinalName)
		metricSendErrors.Inc()
		e.rx.Push(newErrorResult(e.interest.FinalName, ErrNetwork))
		return
	}

	p.pit[token] = &pendingInterest{
		interest: e.interest,
		lifetime: e.lifetime,
		rx:       e.rx,
		sentAt:   time.Now(),
	}
	metricTxInterests.Inc()
}

// drain terminates every staged and pending entry with ErrNetwork.
func (p *Pipeline) drain() {
	for _, e := range p.staging.close() {
		e.rx.Push(newErrorResult(e.interest.FinalName, ErrNetwork))
	}
	for token, entry := range p.pit {
		delete(p.pit, token)
		p.handler.RemoveEntry(token)
		entry.rx.Push(newErrorResult(entry.interest.FinalName, ErrNetwork))
	}
}

// OnData implements face.Sink on the worker goroutine.
func (p *Pipeline) OnData(token uint64, data ndn.Data) {
	entry, ok := p.pit[token]
	if !ok {
		return // late arrival after a timeout
	}
	delete(p.pit, token)

	if p.rtt != nil {
		p.rtt.AddRTTSample(time.Since(entry.sentAt))
	}
	p.window.HandleSignal(congestion.SigData)
	metricRxData.Inc()

	entry.rx.Push(newDataResult(data))
}

// OnNack implements face.Sink on the worker goroutine.
func (p *Pipeline) OnNack(token uint64, reason uint64) {
	entry, ok := p.pit[token]
	if !ok {
		return
	}
	delete(p.pit, token)

	if reason == spec.NackReasonCongestion {
		p.window.HandleSignal(congestion.SigCongest)
	}
	metricNacks.Inc()

	entry.rx.Push(newErrorResult(entry.interest.FinalName, &NackError{Reason: reason}))
}

// OnTimeout implements face.Sink on the worker goroutine.
func (p *Pipeline) OnTimeout(token uint64) {
	entry, ok := p.pit[token]
	if !ok {
		return
	}
	delete(p.pit, token)

	p.window.HandleSignal(congestion.SigLoss)
	metricTimeouts.Inc()

	entry.rx.Push(newErrorResult(entry.interest.FinalName, ErrTimeout))
}

// OnInterest implements face.Sink; a consumer pipeline serves nothing.
func (p *Pipeline) OnInterest(interest ndn.Interest, pitToken []byte) {
	log.Warn(p, "Interest received on consumer pipeline - DROP", "name", interest.Name())
}
