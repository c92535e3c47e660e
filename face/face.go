// Package face provides the data-plane endpoint towards the forwarder and
// the packet handler that demultiplexes LP-framed NDN packets.
package face

import enc "github.com/named-data/ndnd/std/encoding"

// Face is a single-threaded I/O endpoint that sends and receives LP-framed
// NDN packets. It owns no application state.
type Face interface {
	String() string
	// IsRunning returns true if the face is running.
	IsRunning() bool
	// OnPacket sets the callback invoked on the receive goroutine for each
	// frame read from the transport.
	OnPacket(onPkt func(frame []byte))
	// OnError sets the callback for fatal transport errors.
	OnError(onError func(err error))
	// Open starts the face.
	Open() error
	// Close stops the face.
	Close() error
	// Send sends a packet frame to the face.
	Send(pkt enc.Wire) error
}
