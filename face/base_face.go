package face

import (
	"sync"
	"sync/atomic"
)

// baseFace is the base struct for face implementations.
type baseFace struct {
	running atomic.Bool
	onPkt   func(frame []byte)
	onError func(err error)
	sendMut sync.Mutex
}

func (f *baseFace) IsRunning() bool {
	return f.running.Load()
}

func (f *baseFace) OnPacket(onPkt func(frame []byte)) {
	f.onPkt = onPkt
}

func (f *baseFace) OnError(onError func(err error)) {
	f.onError = onError
}

// setStateUp sets the face to the up state.
func (f *baseFace) setStateUp() {
	f.running.Store(true)
}

// setStateDown sets the face to the down state.
func (f *baseFace) setStateDown() {
	f.running.Store(false)
}

// setStateClosed sets the face to the closed state.
// Returns whether the face was running.
func (f *baseFace) setStateClosed() bool {
	return f.running.Swap(false)
}
