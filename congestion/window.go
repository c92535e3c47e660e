// Package congestion provides the pluggable congestion window that bounds
// the number of Interests the pipeline keeps in flight.
package congestion

// Signal represents feedback from the pipeline to the window.
type Signal int

const (
	SigData    Signal = iota // Data fetched
	SigLoss                  // Interest lifetime expired
	SigCongest               // Nack with a congestion reason
)

// Window manages the in-flight Interest budget. HandleSignal is called only
// from the pipeline worker goroutine; Size may be called from any goroutine.
type Window interface {
	String() string

	HandleSignal(signal Signal)

	Size() int
}
