package face

import (
	"fmt"
	"sync"

	enc "github.com/named-data/ndnd/std/encoding"
)

// MemFace is one endpoint of an in-memory face pair. Frames sent on one
// endpoint are delivered to the peer's receive callback on a dedicated
// goroutine, mirroring the threading of a real transport. Used by tests to
// wire a consumer and a producer stack back-to-back.
type MemFace struct {
	baseFace
	peer      *MemFace
	rx        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemPair returns two cross-connected in-memory faces.
func NewMemPair() (*MemFace, *MemFace) {
	a := newMemFace()
	b := newMemFace()
	a.peer, b.peer = b, a
	return a, b
}

func newMemFace() *MemFace {
	return &MemFace{
		rx:   make(chan []byte, 4096),
		done: make(chan struct{}),
	}
}

func (f *MemFace) String() string {
	return "mem-face"
}

func (f *MemFace) Open() error {
	if f.IsRunning() {
		return fmt.Errorf("face is already running")
	}

	if f.onError == nil || f.onPkt == nil {
		return fmt.Errorf("face callbacks are not set")
	}

	f.setStateUp()
	go f.receive()

	return nil
}

func (f *MemFace) Close() error {
	if f.setStateClosed() {
		f.closeOnce.Do(func() { close(f.done) })
	}
	return nil
}

func (f *MemFace) Send(pkt enc.Wire) error {
	if !f.IsRunning() {
		return fmt.Errorf("face is not running")
	}

	// a frame towards a closed peer vanishes, as on a real link
	if f.peer == nil || !f.peer.IsRunning() {
		return nil
	}

	select {
	case f.peer.rx <- pkt.Join():
	case <-f.peer.done:
	}
	return nil
}

func (f *MemFace) receive() {
	for {
		select {
		case frame := <-f.rx:
			f.onPkt(frame)
		case <-f.done:
			return
		}
	}
}
