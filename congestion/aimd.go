package congestion

import (
	"sync"
	"time"

	"github.com/named-data/ndnd/std/log"
)

const (
	minWindow = 2.0
	maxWindow = 1024.0

	aiStep = 1.0
	mdCoef = 0.5

	// floor for the inter-decrease interval, used before any RTT sample
	// exists and whenever the estimate is shorter
	minDecreaseGap = 10 * time.Millisecond
)

// AIMDWindow is a Reno-style Window: additive increase per Data, and a
// multiplicative decrease on loss or congestion marks. The window grows by
// one per Data during slow start and by 1/window afterwards; a loss sets
// ssthresh to half the window (floored at minWindow) and drops the window to
// ssthresh. Decreases within one RTT estimate of the previous decrease are
// suppressed so a burst of correlated losses counts once.
type AIMDWindow struct {
	mutex sync.RWMutex

	window   float64
	ssthresh float64

	rtt          *RTTEstimator
	lastDecrease time.Time
}

func NewAIMDWindow(ssthresh int) *AIMDWindow {
	return &AIMDWindow{
		window:   minWindow,
		ssthresh: float64(ssthresh),
		rtt:      NewRTTEstimator(),
	}
}

// log identifier
func (cw *AIMDWindow) String() string {
	return "aimd-window"
}

func (cw *AIMDWindow) Size() int {
	cw.mutex.RLock()
	defer cw.mutex.RUnlock()

	return int(cw.window)
}

// Ssthresh returns the current slow-start threshold, rounded down.
func (cw *AIMDWindow) Ssthresh() int {
	cw.mutex.RLock()
	defer cw.mutex.RUnlock()

	return int(cw.ssthresh)
}

func (cw *AIMDWindow) HandleSignal(signal Signal) {
	switch signal {
	case SigData:
		cw.increase()
	case SigLoss, SigCongest:
		cw.decrease()
	default:
		// no-op
	}
}

// AddRTTSample feeds one round-trip measurement from a first transmission.
func (cw *AIMDWindow) AddRTTSample(sample time.Duration) {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	cw.rtt.AddMeasurement(sample)
}

func (cw *AIMDWindow) increase() {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if cw.window < cw.ssthresh {
		cw.window += aiStep // slow start
	} else {
		cw.window += aiStep / cw.window // congestion avoidance
	}

	if cw.window > maxWindow {
		cw.window = maxWindow
	}
}

func (cw *AIMDWindow) decrease() {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	gap := cw.rtt.EstimatedRTT()
	if gap < minDecreaseGap {
		gap = minDecreaseGap
	}

	now := time.Now()
	if !cw.lastDecrease.IsZero() && now.Sub(cw.lastDecrease) < gap {
		return // correlated loss burst
	}
	cw.lastDecrease = now

	cw.ssthresh = max(cw.window*mdCoef, minWindow)
	cw.window = cw.ssthresh

	log.Debug(cw, "Window decreased", "window", cw.window, "ssthresh", cw.ssthresh)
}
