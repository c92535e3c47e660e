package ft

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	spec "github.com/named-data/ndnd/std/ndn/spec_2022"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndn-dise/ndnc-go/congestion"
	"github.com/ndn-dise/ndnc-go/face"
	"github.com/ndn-dise/ndnc-go/pipeline"
)

// filterFace drops frames matched by the drop predicate; used to lose
// selected replies on the producer side.
type filterFace struct {
	face.Face
	drop func(wire enc.Wire) bool
}

func (f *filterFace) Send(pkt enc.Wire) error {
	if f.drop != nil && f.drop(pkt) {
		return nil
	}
	return f.Face.Send(pkt)
}

type stack struct {
	client   *Client
	server   *Server
	pipeline *pipeline.Pipeline
}

func startStack(t *testing.T, root string, clientOpts ClientOptions, serverOpts ServerOptions,
	window congestion.Window, drop func(wire enc.Wire) bool) *stack {
	t.Helper()

	consumerFace, producerFace := face.NewMemPair()

	serverOpts.Root = root
	var serverSide face.Face = producerFace
	if drop != nil {
		serverSide = &filterFace{Face: producerFace, drop: drop}
	}
	server, err := NewServer(serverSide, serverOpts)
	require.NoError(t, err)
	require.NoError(t, server.Start())

	p := pipeline.New(consumerFace, window)
	require.NoError(t, p.Start())

	client, err := NewClient(p, clientOpts)
	require.NoError(t, err)

	t.Cleanup(func() {
		p.Stop()
		server.Stop()
	})

	return &stack{client: client, server: server, pipeline: p}
}

// segmentNumberOf inspects an outbound producer frame and returns the
// segment of the Data inside, if any.
func segmentNumberOf(wire enc.Wire) (uint64, bool) {
	pkt, _, err := spec.ReadPacket(enc.NewWireView(wire))
	if err != nil || pkt.LpPacket == nil {
		return 0, false
	}
	inner, _, err := spec.ReadPacket(enc.NewWireView(pkt.LpPacket.Fragment))
	if err != nil || inner.Data == nil {
		return 0, false
	}
	name := inner.Data.Name()
	if len(name) == 0 || name.At(-1).Typ != enc.TypeSegmentNameComponent {
		return 0, false
	}
	return name.At(-1).NumberVal(), true
}

func TestTransferSmallFile(t *testing.T) {
	root := t.TempDir()
	content := make([]byte, 4096)
	_, err := rand.Read(content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello"), content, 0o644))

	st := startStack(t, root,
		ClientOptions{NamePrefix: "/ndnc/ft", Lifetime: time.Second, Streams: 2},
		ServerOptions{NamePrefix: "/ndnc/ft", SegmentSize: 1024},
		congestion.NewFixedWindow(8), nil)

	var progress atomic.Uint64
	sink := newMemSink(4096)
	tr := st.client.Transfer("/hello", sink, func(bytes uint64) {
		progress.Add(bytes)
	})

	require.NoError(t, tr.Err)
	assert.Equal(t, StateDone, tr.State)
	assert.Equal(t, content, sink.Bytes())
	assert.Equal(t, uint64(4096), progress.Load())

	// 1 metadata + 4 segments, no losses
	counters := st.client.Counters()
	assert.Equal(t, uint64(5), counters.NInterest.Load())
	assert.Equal(t, uint64(5), counters.NData.Load())
	assert.Equal(t, uint64(0), counters.NTimeout.Load())
	assert.Equal(t, uint64(5), st.server.Received())
}

func TestTransferMissingPath(t *testing.T) {
	st := startStack(t, t.TempDir(),
		ClientOptions{NamePrefix: "/ndnc/ft", Lifetime: time.Second},
		ServerOptions{NamePrefix: "/ndnc/ft"},
		congestion.NewFixedWindow(8), nil)

	sink := newMemSink(0)
	tr := st.client.Transfer("/missing", sink, nil)

	require.Error(t, tr.Err)
	assert.Equal(t, StateAborted, tr.State)
	assert.ErrorIs(t, tr.Err, pipeline.ErrNotFound)

	// the metadata Interest was the only one sent
	assert.Equal(t, uint64(1), st.client.Counters().NInterest.Load())
}

func TestTransferRetriesDroppedSegment(t *testing.T) {
	root := t.TempDir()
	content := make([]byte, 4096)
	_, err := rand.Read(content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello"), content, 0o644))

	var dropped atomic.Bool
	drop := func(wire enc.Wire) bool {
		if seg, ok := segmentNumberOf(wire); ok && seg == 2 {
			return !dropped.Swap(true) // lose the first reply only
		}
		return false
	}

	st := startStack(t, root,
		ClientOptions{NamePrefix: "/ndnc/ft", Lifetime: 200 * time.Millisecond, Streams: 2},
		ServerOptions{NamePrefix: "/ndnc/ft", SegmentSize: 1024},
		congestion.NewFixedWindow(8), drop)

	sink := newMemSink(4096)
	tr := st.client.Transfer("/hello", sink, nil)

	require.NoError(t, tr.Err)
	assert.Equal(t, content, sink.Bytes())

	counters := st.client.Counters()
	assert.GreaterOrEqual(t, counters.NInterest.Load(), uint64(6))
	assert.Equal(t, uint64(5), counters.NData.Load())
	assert.GreaterOrEqual(t, counters.NTimeout.Load(), uint64(1))
}

func TestTransferAbortsAfterRetryBudget(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello"), make([]byte, 2048), 0o644))

	drop := func(wire enc.Wire) bool {
		seg, ok := segmentNumberOf(wire)
		return ok && seg == 1 // lose every reply for segment 1
	}

	st := startStack(t, root,
		ClientOptions{NamePrefix: "/ndnc/ft", Lifetime: 100 * time.Millisecond, Streams: 1},
		ServerOptions{NamePrefix: "/ndnc/ft", SegmentSize: 1024},
		congestion.NewFixedWindow(8), drop)

	tr := st.client.Transfer("/hello", newMemSink(2048), nil)

	require.Error(t, tr.Err)
	assert.Equal(t, StateAborted, tr.State)
	assert.ErrorIs(t, tr.Err, pipeline.ErrTimeout)
	assert.GreaterOrEqual(t, st.client.Counters().NTimeout.Load(), uint64(2))
}

func TestTransferVersionMismatch(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "hello")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o644))

	st := startStack(t, root,
		ClientOptions{NamePrefix: "/ndnc/ft", Lifetime: time.Second},
		ServerOptions{NamePrefix: "/ndnc/ft", SegmentSize: 1024},
		congestion.NewFixedWindow(8), nil)

	meta, err := st.client.FetchMetadata("/hello")
	require.NoError(t, err)

	// the file changes on disk after discovery
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	err = st.client.FetchFile(meta, newMemSink(2048), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrProtocol)
}

func TestListDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "alpha"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "beta"), []byte("b"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "gamma"), []byte("g"), 0o644))

	st := startStack(t, root,
		ClientOptions{NamePrefix: "/ndnc/ft", Lifetime: time.Second},
		ServerOptions{NamePrefix: "/ndnc/ft", SegmentSize: 1024},
		congestion.NewFixedWindow(8), nil)

	entries, err := st.client.List("/", false)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Path: "/alpha"},
		{Path: "/beta"},
		{Path: "/sub", IsDir: true},
	}, entries)

	deep, err := st.client.List("/", true)
	require.NoError(t, err)
	assert.Contains(t, deep, Entry{Path: "/sub/gamma"})
}

func TestRepeatedTransfersIdentical(t *testing.T) {
	root := t.TempDir()
	content := make([]byte, 8192)
	_, err := rand.Read(content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "shared"), content, 0o644))

	run := func() []byte {
		st := startStack(t, root,
			ClientOptions{NamePrefix: "/ndnc/ft", Lifetime: time.Second, Streams: 4},
			ServerOptions{NamePrefix: "/ndnc/ft", SegmentSize: 1024},
			congestion.NewAIMDWindow(32), nil)

		sink := newMemSink(8192)
		tr := st.client.Transfer("/shared", sink, nil)
		require.NoError(t, tr.Err)
		return sink.Bytes()
	}

	first := run()
	second := run()
	assert.True(t, bytes.Equal(first, second))
	assert.Equal(t, content, first)
}
