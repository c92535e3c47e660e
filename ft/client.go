package ft

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/log"
	"github.com/named-data/ndnd/std/ndn"
	spec "github.com/named-data/ndnd/std/ndn/spec_2022"
	"github.com/named-data/ndnd/std/types/optional"
	"golang.org/x/sync/errgroup"

	"github.com/ndn-dise/ndnc-go/pipeline"
)

const (
	// segments staged per stream before waiting on the receive queue
	chunkSize = 64
	// retransmissions per segment before the file aborts
	maxSegmentRetries = 1

	defaultLifetime = 4 * time.Second
	maxStreams      = 16
)

// ClientOptions configures the file-transfer client.
type ClientOptions struct {
	// NamePrefix is the prefix the producer serves under. Required.
	NamePrefix string `yaml:"name-prefix"`
	// Lifetime of each Interest.
	Lifetime time.Duration `yaml:"lifetime"`
	// Streams is the number of parallel request/receive stream pairs.
	Streams int `yaml:"streams"`
}

func (o *ClientOptions) applyDefaults() {
	if o.Lifetime <= 0 {
		o.Lifetime = defaultLifetime
	}
	if o.Streams < 1 {
		o.Streams = 1
	}
	if o.Streams > maxStreams {
		o.Streams = maxStreams
	}
}

// ProgressFunc is invoked with the payload size of each received segment.
type ProgressFunc func(bytes uint64)

// Counters accumulate over the lifetime of a client.
type Counters struct {
	NInterest atomic.Uint64
	NData     atomic.Uint64
	NTimeout  atomic.Uint64
}

// TransferState tracks one file through its fetch.
type TransferState int

const (
	StateUnopened TransferState = iota
	StateOpening
	StateOpen
	StateFetching
	StateDone
	StateAborted
)

func (s TransferState) String() string {
	switch s {
	case StateUnopened:
		return "Unopened"
	case StateOpening:
		return "Opening"
	case StateOpen:
		return "Open"
	case StateFetching:
		return "Fetching"
	case StateDone:
		return "Done"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Transfer is the per-file state machine. Aborted is terminal; there are no
// partial retries beyond individual segments.
type Transfer struct {
	Path  string
	State TransferState
	Meta  *Metadata
	Err   error
}

// Entry is one node of a directory listing.
type Entry struct {
	Path  string
	IsDir bool
}

// Client fetches files over the Interest pipeline using the RDR convention.
type Client struct {
	opts     ClientOptions
	prefix   enc.Name
	pipeline *pipeline.Pipeline
	counters Counters
}

func NewClient(p *pipeline.Pipeline, opts ClientOptions) (*Client, error) {
	opts.applyDefaults()

	prefix, err := enc.NameFromStr(opts.NamePrefix)
	if err != nil || len(prefix) == 0 {
		return nil, fmt.Errorf("invalid name prefix %q", opts.NamePrefix)
	}

	return &Client{
		opts:     opts,
		prefix:   prefix,
		pipeline: p,
	}, nil
}

// log identifier
func (c *Client) String() string {
	return "ft-client"
}

func (c *Client) Counters() *Counters {
	return &c.counters
}

func interestNonce() optional.Optional[uint32] {
	var b [4]byte
	rand.Read(b[:])
	return optional.Some(binary.BigEndian.Uint32(b[:]))
}

// resultWait is how long a worker waits on its receive queue before
// declaring the pipeline wedged; the pipeline itself reports timeouts
// within one lifetime.
func (c *Client) resultWait() time.Duration {
	return 2*c.opts.Lifetime + time.Second
}

// FetchMetadata discovers the RDR metadata for path. A producer answer
// with ContentType Nack maps to ErrNotFound.
func (c *Client) FetchMetadata(path string) (*Metadata, error) {
	name := c.prefix.Append(pathComponents(path)...).Append(metadataComponent())
	interest, err := spec.Spec{}.MakeInterest(name, &ndn.InterestConfig{
		CanBePrefix: true,
		MustBeFresh: true,
		Lifetime:    optional.Some(c.opts.Lifetime),
		Nonce:       interestNonce(),
	}, nil, nil)
	if err != nil {
		return nil, err
	}

	rx := pipeline.NewRxQueue()
	if !c.pipeline.Enqueue(interest, c.opts.Lifetime, rx) {
		return nil, pipeline.ErrNetwork
	}
	c.counters.NInterest.Add(1)

	res, ok := rx.Dequeue(c.resultWait())
	if !ok {
		return nil, pipeline.ErrTimeout
	}
	if err := res.Err(); err != nil {
		if errors.Is(err, pipeline.ErrTimeout) {
			c.counters.NTimeout.Add(1)
		}
		return nil, fmt.Errorf("metadata %s: %w", path, err)
	}
	c.counters.NData.Add(1)

	data := res.Data()
	if ct, ok := data.ContentType().Get(); ok && ct == ndn.ContentTypeNack {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrNotFound, path)
	}

	meta, err := ParseMetadata(data)
	if err != nil {
		return nil, err
	}

	log.Info(c, "Metadata received", "path", path, "size", meta.Size,
		"segments", meta.FinalBlockID+1, "version", meta.Version)
	return meta, nil
}

// FetchFile retrieves every segment of the discovered object into sink.
// Stream i of S is responsible for segments {i, i+S, i+2S, ...}; each
// stream enqueues chunks and blocks only on its own receive queue.
func (c *Client) FetchFile(meta *Metadata, sink io.WriterAt, onProgress ProgressFunc) error {
	if meta.Size == 0 {
		return nil
	}

	streams := c.opts.Streams
	var stop atomic.Bool

	g := new(errgroup.Group)
	for i := 0; i < streams; i++ {
		first := uint64(i)
		g.Go(func() error {
			return c.fetchStream(meta, first, uint64(streams), sink, onProgress, &stop)
		})
	}
	return g.Wait()
}

func (c *Client) fetchStream(meta *Metadata, first, stride uint64,
	sink io.WriterAt, onProgress ProgressFunc, stop *atomic.Bool) error {

	rx := pipeline.NewRxQueue()

	segNo := first
	for segNo <= meta.FinalBlockID && !stop.Load() {
		// stage one chunk
		outstanding := 0
		for outstanding < chunkSize && segNo <= meta.FinalBlockID {
			if err := c.expressSegment(meta, segNo, rx); err != nil {
				stop.Store(true)
				return err
			}
			segNo += stride
			outstanding++
		}

		// drain the chunk, retransmitting timed-out segments once
		retries := make(map[uint64]int)
		for outstanding > 0 && !stop.Load() {
			res, ok := rx.Dequeue(c.resultWait())
			if !ok {
				stop.Store(true)
				return fmt.Errorf("pipeline result missing: %w", pipeline.ErrTimeout)
			}

			if err := res.Err(); err != nil {
				if errors.Is(err, pipeline.ErrTimeout) {
					c.counters.NTimeout.Add(1)
					if seg, serr := segmentOf(res.Name()); serr == nil && retries[seg] < maxSegmentRetries {
						retries[seg]++
						log.Debug(c, "Retransmitting segment", "seg", seg)
						if rerr := c.expressSegment(meta, seg, rx); rerr == nil {
							continue
						}
					}
				}
				stop.Store(true)
				return fmt.Errorf("fetch %s: %w", res.Name(), err)
			}

			data := res.Data()
			if ct, ok := data.ContentType().Get(); ok && ct == ndn.ContentTypeNack {
				stop.Store(true)
				return fmt.Errorf("%w: producer dropped version %d", pipeline.ErrProtocol, meta.Version)
			}
			c.counters.NData.Add(1)

			seg, err := segmentOf(data.Name())
			if err != nil {
				stop.Store(true)
				return fmt.Errorf("%w: %v", pipeline.ErrProtocol, err)
			}

			payload := data.Content().Join()
			if _, err := sink.WriteAt(payload, int64(seg*meta.SegmentSize)); err != nil {
				stop.Store(true)
				return err
			}
			outstanding--

			if onProgress != nil {
				onProgress(uint64(len(payload)))
			}
		}
	}
	return nil
}

func (c *Client) expressSegment(meta *Metadata, seg uint64, rx *pipeline.RxQueue) error {
	name := meta.VersionedName.Append(enc.NewSegmentComponent(seg))
	interest, err := spec.Spec{}.MakeInterest(name, &ndn.InterestConfig{
		Lifetime: optional.Some(c.opts.Lifetime),
		Nonce:    interestNonce(),
	}, nil, nil)
	if err != nil {
		return err
	}

	if !c.pipeline.Enqueue(interest, c.opts.Lifetime, rx) {
		return pipeline.ErrNetwork
	}
	c.counters.NInterest.Add(1)
	return nil
}

// Transfer drives the full per-file state machine for one path.
func (c *Client) Transfer(path string, sink io.WriterAt, onProgress ProgressFunc) *Transfer {
	tr := &Transfer{Path: path, State: StateUnopened}

	tr.State = StateOpening
	meta, err := c.FetchMetadata(path)
	if err != nil {
		tr.Err = err
		tr.State = StateAborted
		return tr
	}
	tr.Meta = meta
	tr.State = StateOpen

	tr.State = StateFetching
	if err := c.FetchFile(meta, sink, onProgress); err != nil {
		tr.Err = err
		tr.State = StateAborted
		return tr
	}

	tr.State = StateDone
	return tr
}

// List enumerates the children of a directory path; a plain file lists
// itself. With recursive set, directories are walked depth-first.
func (c *Client) List(path string, recursive bool) ([]Entry, error) {
	meta, err := c.FetchMetadata(path)
	if err != nil {
		return nil, err
	}
	if !meta.IsDir() {
		return []Entry{{Path: path}}, nil
	}

	sink := newMemSink(meta.Size)
	if err := c.FetchFile(meta, sink, nil); err != nil {
		return nil, err
	}

	base := path
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	var entries []Entry
	for _, child := range parseListing(sink.Bytes()) {
		full := base + child.Path
		entries = append(entries, Entry{Path: full, IsDir: child.IsDir})
		if child.IsDir && recursive {
			sub, err := c.List(full, true)
			if err != nil {
				return nil, err
			}
			entries = append(entries, sub...)
		}
	}
	return entries, nil
}
