package face

import (
	"encoding/binary"
	"testing"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/ndn"
	spec "github.com/named-data/ndnd/std/ndn/spec_2022"
	"github.com/named-data/ndnd/std/types/optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureFace records sent frames without any transport behind it.
type captureFace struct {
	baseFace
	sent []enc.Wire
}

func (f *captureFace) String() string { return "capture-face" }

func (f *captureFace) Open() error {
	f.setStateUp()
	return nil
}

func (f *captureFace) Close() error {
	f.setStateClosed()
	return nil
}

func (f *captureFace) Send(pkt enc.Wire) error {
	f.sent = append(f.sent, pkt)
	return nil
}

// recordSink collects handler events.
type recordSink struct {
	data     []uint64
	nacks    []uint64
	reasons  []uint64
	timeouts []uint64
}

func (s *recordSink) OnData(token uint64, data ndn.Data) { s.data = append(s.data, token) }
func (s *recordSink) OnNack(token uint64, reason uint64) {
	s.nacks = append(s.nacks, token)
	s.reasons = append(s.reasons, reason)
}
func (s *recordSink) OnTimeout(token uint64)                          { s.timeouts = append(s.timeouts, token) }
func (s *recordSink) OnInterest(interest ndn.Interest, token []byte)  {}

func makeInterest(t *testing.T, name string, lifetime time.Duration) *ndn.EncodedInterest {
	t.Helper()
	nm, err := enc.NameFromStr(name)
	require.NoError(t, err)
	interest, err := spec.Spec{}.MakeInterest(nm, &ndn.InterestConfig{
		Lifetime: optional.Some(lifetime),
	}, nil, nil)
	require.NoError(t, err)
	return interest
}

func tokenWire(token uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, token)
	return buf
}

func lpFrame(t *testing.T, fragment enc.Wire, token uint64, nackReason uint64) []byte {
	t.Helper()
	lpPkt := &spec.Packet{
		LpPacket: &spec.LpPacket{
			PitToken: tokenWire(token),
			Fragment: fragment,
		},
	}
	if nackReason != spec.NackReasonNone {
		lpPkt.LpPacket.Nack = &spec.NetworkNack{Reason: nackReason}
	}
	encoder := spec.PacketEncoder{}
	encoder.Init(lpPkt)
	wire := encoder.Encode(lpPkt)
	require.NotNil(t, wire)
	return wire.Join()
}

func dataFrame(t *testing.T, name string, token uint64) []byte {
	t.Helper()
	nm, err := enc.NameFromStr(name)
	require.NoError(t, err)
	data, err := spec.Spec{}.MakeData(nm, &ndn.DataConfig{
		ContentType: optional.Some(ndn.ContentTypeBlob),
	}, nil, nil)
	require.NoError(t, err)
	return lpFrame(t, data.Wire, token, spec.NackReasonNone)
}

func TestExpressTagsPitToken(t *testing.T) {
	f := &captureFace{}
	require.NoError(t, f.Open())
	sink := &recordSink{}
	h := NewHandler(f, sink)

	interest := makeInterest(t, "/ndnc/test/a", time.Second)
	token, err := h.ExpressInterest(interest, time.Second)
	require.NoError(t, err)
	require.Len(t, f.sent, 1)
	require.Equal(t, 1, h.Outstanding())

	pkt, _, err := spec.ReadPacket(enc.NewWireView(f.sent[0]))
	require.NoError(t, err)
	require.NotNil(t, pkt.LpPacket)
	assert.Equal(t, tokenWire(token), pkt.LpPacket.PitToken)

	inner, _, err := spec.ReadPacket(enc.NewWireView(pkt.LpPacket.Fragment))
	require.NoError(t, err)
	require.NotNil(t, inner.Interest)
	assert.Equal(t, interest.FinalName.String(), inner.Interest.Name().String())
}

func TestDispatchData(t *testing.T) {
	f := &captureFace{}
	require.NoError(t, f.Open())
	sink := &recordSink{}
	h := NewHandler(f, sink)

	interest := makeInterest(t, "/ndnc/test/b", time.Second)
	token, err := h.ExpressInterest(interest, time.Second)
	require.NoError(t, err)

	frame := dataFrame(t, "/ndnc/test/b", token)
	h.Dispatch(frame)
	require.Equal(t, []uint64{token}, sink.data)
	assert.Equal(t, 0, h.Outstanding())

	// a late duplicate is dropped silently
	h.Dispatch(frame)
	assert.Equal(t, []uint64{token}, sink.data)
}

func TestDispatchNack(t *testing.T) {
	f := &captureFace{}
	require.NoError(t, f.Open())
	sink := &recordSink{}
	h := NewHandler(f, sink)

	interest := makeInterest(t, "/ndnc/test/c", time.Second)
	token, err := h.ExpressInterest(interest, time.Second)
	require.NoError(t, err)

	h.Dispatch(lpFrame(t, interest.Wire, token, spec.NackReasonCongestion))
	require.Equal(t, []uint64{token}, sink.nacks)
	assert.Equal(t, []uint64{spec.NackReasonCongestion}, sink.reasons)
	assert.Equal(t, 0, h.Outstanding())
}

func TestScanTimeoutsInOrder(t *testing.T) {
	f := &captureFace{}
	require.NoError(t, f.Open())
	sink := &recordSink{}
	h := NewHandler(f, sink)

	var tokens []uint64
	for _, name := range []string{"/t/0", "/t/1", "/t/2"} {
		token, err := h.ExpressInterest(makeInterest(t, name, 10*time.Millisecond), 10*time.Millisecond)
		require.NoError(t, err)
		tokens = append(tokens, token)
	}

	h.ScanTimeouts(time.Now())
	assert.Empty(t, sink.timeouts)

	h.ScanTimeouts(time.Now().Add(time.Second))
	assert.Equal(t, tokens, sink.timeouts)
	assert.Equal(t, 0, h.Outstanding())
}

func TestRemoveEntrySkipsTimeout(t *testing.T) {
	f := &captureFace{}
	require.NoError(t, f.Open())
	sink := &recordSink{}
	h := NewHandler(f, sink)

	token, err := h.ExpressInterest(makeInterest(t, "/t/x", time.Millisecond), time.Millisecond)
	require.NoError(t, err)

	require.True(t, h.RemoveEntry(token))
	require.False(t, h.RemoveEntry(token))

	h.ScanTimeouts(time.Now().Add(time.Second))
	assert.Empty(t, sink.timeouts)
}
