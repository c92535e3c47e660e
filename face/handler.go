package face

import (
	"container/heap"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/log"
	"github.com/named-data/ndnd/std/ndn"
	spec "github.com/named-data/ndnd/std/ndn/spec_2022"

	"github.com/ndn-dise/ndnc-go/lp"
)

// Sink receives the demultiplexed packet events of a Handler.
type Sink interface {
	// OnData is invoked for a Data packet matching an expressed Interest.
	OnData(token uint64, data ndn.Data)
	// OnNack is invoked for a Nack matching an expressed Interest.
	OnNack(token uint64, reason uint64)
	// OnTimeout is invoked by ScanTimeouts for each expired Interest.
	OnTimeout(token uint64)
	// OnInterest is invoked for an inbound Interest (producer side).
	OnInterest(interest ndn.Interest, pitToken []byte)
}

// Handler binds a component to a Face. It tags outgoing Interests with
// fresh PIT tokens, dispatches inbound frames by packet kind, and keeps the
// Interest lifetime indexes driven by ScanTimeouts.
//
// A Handler holds no locks: all methods must be called from the single
// goroutine that owns it. Sending replies through PutData is the exception,
// as the face serializes its own send path.
type Handler struct {
	face   Face
	tokens *lp.TokenGenerator
	sink   Sink

	// lifetime indexes: token to deadline, and deadline-ordered schedule
	deadlines map[uint64]time.Time
	schedule  scheduleHeap
	scheduled uint64
}

func NewHandler(face Face, sink Sink) *Handler {
	return &Handler{
		face:      face,
		tokens:    lp.NewTokenGenerator(),
		sink:      sink,
		deadlines: make(map[uint64]time.Time),
	}
}

// log identifier
func (h *Handler) String() string {
	return "packet-handler"
}

// Outstanding returns the number of expressed Interests not yet terminated.
func (h *Handler) Outstanding() int {
	return len(h.deadlines)
}

// ExpressInterest wraps the encoded Interest in an LpPacket carrying a
// fresh PIT token, hands it to the face, and on success records its
// deadline as now + lifetime. On a send error nothing is recorded.
func (h *Handler) ExpressInterest(interest *ndn.EncodedInterest, lifetime time.Duration) (uint64, error) {
	tokenWire := h.tokens.Next()
	token := h.tokens.Sequence()

	lpPkt := &spec.Packet{
		LpPacket: &spec.LpPacket{
			PitToken: tokenWire,
			Fragment: interest.Wire,
		},
	}
	encoder := spec.PacketEncoder{}
	encoder.Init(lpPkt)
	wire := encoder.Encode(lpPkt)
	if wire == nil {
		return 0, ndn.ErrFailedToEncode
	}

	if err := h.face.Send(wire); err != nil {
		return 0, err
	}

	h.deadlines[token] = time.Now().Add(lifetime)
	h.scheduled++
	heap.Push(&h.schedule, scheduleEntry{
		deadline: h.deadlines[token],
		seq:      h.scheduled,
		token:    token,
	})

	return token, nil
}

// PutData replies with an encoded Data under the Interest's PIT token.
func (h *Handler) PutData(data enc.Wire, pitToken []byte) error {
	if len(pitToken) == 0 {
		return h.face.Send(data)
	}

	lpPkt := &spec.Packet{
		LpPacket: &spec.LpPacket{
			PitToken: pitToken,
			Fragment: data,
		},
	}
	encoder := spec.PacketEncoder{}
	encoder.Init(lpPkt)
	wire := encoder.Encode(lpPkt)
	if wire == nil {
		return ndn.ErrFailedToEncode
	}

	return h.face.Send(wire)
}

// RemoveEntry drops the token from the lifetime indexes. Returns false if
// the token is unknown, which happens for late arrivals after a timeout.
func (h *Handler) RemoveEntry(token uint64) bool {
	if _, ok := h.deadlines[token]; !ok {
		return false
	}
	delete(h.deadlines, token)
	// the schedule entry is discarded lazily by ScanTimeouts
	return true
}

// ScanTimeouts reports and removes every entry whose deadline has passed.
// Entries sharing a deadline are reported in token-insertion order.
func (h *Handler) ScanTimeouts(now time.Time) {
	for h.schedule.Len() > 0 {
		head := h.schedule.entries[0]

		if _, ok := h.deadlines[head.token]; !ok {
			heap.Pop(&h.schedule) // terminated early
			continue
		}
		if head.deadline.After(now) {
			return
		}

		heap.Pop(&h.schedule)
		delete(h.deadlines, head.token)
		h.sink.OnTimeout(head.token)
	}
}

// Dispatch parses one frame and routes it to the sink. Unparseable frames
// and Data without a known PIT token are dropped.
func (h *Handler) Dispatch(frame []byte) {
	pkt, _, err := spec.ReadPacket(enc.NewBufferView(frame))
	if err != nil {
		log.Warn(h, "Failed to parse frame", "err", err)
		return
	}

	nackReason := spec.NackReasonNone
	var pitToken []byte

	if pkt.LpPacket != nil {
		lpPkt := pkt.LpPacket
		if lpPkt.FragIndex.IsSet() || lpPkt.FragCount.IsSet() {
			log.Warn(h, "Fragmented LpPackets are not supported - DROP")
			return
		}

		pitToken = lpPkt.PitToken
		if lpPkt.Nack != nil {
			nackReason = lpPkt.Nack.Reason
		}

		raw := lpPkt.Fragment
		if len(raw) == 1 {
			pkt, _, err = spec.ReadPacket(enc.NewBufferView(raw[0]))
		} else {
			pkt, _, err = spec.ReadPacket(enc.NewWireView(raw))
		}
		if err != nil || (pkt.Data == nil) == (pkt.Interest == nil) {
			log.Warn(h, "Failed to parse packet in LpPacket", "err", err)
			return
		}
	}

	switch {
	case nackReason != spec.NackReasonNone:
		if pkt.Interest == nil {
			log.Warn(h, "Nack received for non-Interest", "reason", nackReason)
			return
		}
		token, err := lp.TokenValue(pitToken)
		if err != nil {
			log.Warn(h, "Nack received without a valid PIT token", "err", err)
			return
		}
		if h.RemoveEntry(token) {
			h.sink.OnNack(token, nackReason)
		}

	case pkt.Data != nil:
		token, err := lp.TokenValue(pitToken)
		if err != nil {
			return // unsolicited data
		}
		if h.RemoveEntry(token) {
			h.sink.OnData(token, pkt.Data)
		}

	case pkt.Interest != nil:
		h.sink.OnInterest(pkt.Interest, pitToken)
	}
}
