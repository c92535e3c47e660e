package ft

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/log"
	"github.com/named-data/ndnd/std/ndn"
	spec "github.com/named-data/ndnd/std/ndn/spec_2022"
	sig "github.com/named-data/ndnd/std/security/signer"
	"github.com/named-data/ndnd/std/types/optional"
	"golang.org/x/sync/errgroup"

	"github.com/ndn-dise/ndnc-go/face"
)

const (
	defaultSegmentSize = 4096
	defaultWorkers     = 4
	defaultFreshness   = time.Second

	// freshness of metadata answers, kept short so consumers re-discover
	// new versions promptly
	metadataFreshness = time.Second

	fileCacheCapacity = 64
)

// ServerOptions configures the file-transfer producer.
type ServerOptions struct {
	// NamePrefix is the registered prefix. Required.
	NamePrefix string `yaml:"name-prefix"`
	// Root is the filesystem directory served. Required.
	Root string `yaml:"root"`
	// SegmentSize of Data payloads; must fit the face dataroom.
	SegmentSize uint64 `yaml:"segment-size"`
	// Freshness of segment Data packets.
	Freshness time.Duration `yaml:"freshness"`
	// Workers handling Interests in parallel.
	Workers int `yaml:"workers"`
}

func (o *ServerOptions) applyDefaults() {
	if o.SegmentSize == 0 {
		o.SegmentSize = defaultSegmentSize
	}
	if o.Freshness <= 0 {
		o.Freshness = defaultFreshness
	}
	if o.Workers < 1 {
		o.Workers = defaultWorkers
	}
}

// Server answers RDR metadata and segment Interests for files under a
// local root, signing every Data with a SHA-256 digest. Errors are answered
// with a ContentType Nack Data rather than dropped, so consumers fail fast
// instead of waiting out their lifetime.
type Server struct {
	opts    ServerOptions
	prefix  enc.Name
	face    face.Face
	handler *face.Handler
	signer  ndn.Signer
	files   *fileCache

	frames chan []byte
	stopCh chan struct{}
	group  *errgroup.Group

	running   atomic.Bool
	stopOnce  sync.Once
	nReceived atomic.Uint64
}

func NewServer(f face.Face, opts ServerOptions) (*Server, error) {
	opts.applyDefaults()

	prefix, err := enc.NameFromStr(opts.NamePrefix)
	if err != nil || len(prefix) == 0 {
		return nil, fmt.Errorf("invalid name prefix %q", opts.NamePrefix)
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("no root directory to serve")
	}

	s := &Server{
		opts:   opts,
		prefix: prefix,
		face:   f,
		signer: sig.NewSha256Signer(),
		files:  newFileCache(fileCacheCapacity),
		frames: make(chan []byte, 1024),
		stopCh: make(chan struct{}),
	}
	s.handler = face.NewHandler(f, s)
	return s, nil
}

// log identifier
func (s *Server) String() string {
	return "ft-server"
}

// Received returns the number of Interests handled so far.
func (s *Server) Received() uint64 {
	return s.nReceived.Load()
}

// Start opens the face and launches the worker pool. The workers share the
// packet handler; only its stateless Interest path is exercised here.
func (s *Server) Start() error {
	s.face.OnPacket(s.onFrame)
	s.face.OnError(func(err error) {
		log.Error(s, "Fatal transport error", "err", err)
		go s.Stop()
	})

	if !s.face.IsRunning() {
		if err := s.face.Open(); err != nil {
			return err
		}
	}

	s.group = new(errgroup.Group)
	for i := 0; i < s.opts.Workers; i++ {
		s.group.Go(s.worker)
	}

	s.running.Store(true)
	log.Info(s, "Serving files", "prefix", s.prefix, "root", s.opts.Root,
		"segment-size", s.opts.SegmentSize)
	return nil
}

// Stop closes the face, joins the workers and drops cached file handles.
// Idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		close(s.stopCh)
		s.face.Close()
		if s.group != nil {
			s.group.Wait()
		}
		s.files.purge()
	})
}

func (s *Server) onFrame(frame []byte) {
	frameCopy := make([]byte, len(frame))
	copy(frameCopy, frame)

	select {
	case s.frames <- frameCopy:
	case <-s.stopCh:
	}
}

func (s *Server) worker() error {
	for {
		select {
		case frame := <-s.frames:
			s.handler.Dispatch(frame)
		case <-s.stopCh:
			return nil
		}
	}
}

// OnInterest implements face.Sink: classify by the last component
// (32=metadata, or a segment directly under a version) and answer; any
// other name under the prefix gets a Nack answer.
func (s *Server) OnInterest(interest ndn.Interest, pitToken []byte) {
	s.nReceived.Add(1)
	metricServerInterests.Inc()

	name := interest.Name()
	if !s.prefix.IsPrefix(name) {
		log.Warn(s, "Interest outside served prefix - DROP", "name", name)
		return
	}
	rest := name[len(s.prefix):]
	if len(rest) == 0 {
		s.replyNack(interest, pitToken)
		return
	}

	last := rest[len(rest)-1]
	switch {
	case isMetadataComponent(last):
		path, err := componentsToPath(rest[:len(rest)-1])
		if err != nil {
			s.replyNack(interest, pitToken)
			return
		}
		s.replyMetadata(interest, path, pitToken)

	case last.Typ == enc.TypeSegmentNameComponent:
		if len(rest) < 2 || rest[len(rest)-2].Typ != enc.TypeVersionNameComponent {
			s.replyNack(interest, pitToken)
			return
		}
		path, err := componentsToPath(rest[:len(rest)-2])
		if err != nil {
			s.replyNack(interest, pitToken)
			return
		}
		s.replySegment(interest, path, rest[len(rest)-2].NumberVal(), last.NumberVal(), pitToken)

	default:
		s.replyNack(interest, pitToken)
	}
}

// Unused face.Sink hooks: the producer expresses no Interests.
func (s *Server) OnData(token uint64, data ndn.Data) {}
func (s *Server) OnNack(token uint64, reason uint64) {}
func (s *Server) OnTimeout(token uint64)             {}

func (s *Server) resolve(path string) string {
	return filepath.Join(s.opts.Root, filepath.FromSlash(path))
}

// version derives the served version from the file's mtime, so a change on
// disk invalidates outstanding segment names.
func version(fi os.FileInfo) uint64 {
	return uint64(fi.ModTime().UnixNano())
}

func (s *Server) replyMetadata(interest ndn.Interest, path string, pitToken []byte) {
	fi, err := os.Stat(s.resolve(path))
	if err != nil {
		log.Debug(s, "Metadata for missing path", "path", path)
		s.replyNack(interest, pitToken)
		return
	}

	size := uint64(fi.Size())
	if fi.IsDir() {
		listing, err := s.listing(path)
		if err != nil {
			s.replyNack(interest, pitToken)
			return
		}
		size = uint64(len(listing))
	}

	meta := &Metadata{
		VersionedName: s.prefix.Append(pathComponents(path)...).
			Append(enc.NewVersionComponent(version(fi))),
		Version:      version(fi),
		FinalBlockID: finalBlock(size, s.opts.SegmentSize),
		SegmentSize:  s.opts.SegmentSize,
		Size:         size,
		Mode:         uint64(fi.Mode()),
		Mtime:        fi.ModTime(),
	}

	replyName := interest.Name().Append(enc.NewVersionComponent(meta.Version))
	data, err := spec.Spec{}.MakeData(replyName, &ndn.DataConfig{
		ContentType:  optional.Some(ndn.ContentTypeBlob),
		Freshness:    optional.Some(metadataFreshness),
		FinalBlockID: optional.Some(enc.NewSegmentComponent(meta.FinalBlockID)),
	}, meta.Encode(), s.signer)
	if err != nil {
		log.Error(s, "Failed to encode metadata", "err", err)
		return
	}

	s.putData(data.Wire, pitToken)
}

func (s *Server) replySegment(interest ndn.Interest, path string, ver uint64, seg uint64, pitToken []byte) {
	full := s.resolve(path)

	fi, err := os.Stat(full)
	if err != nil || version(fi) != ver {
		// the file changed on disk, or vanished
		s.replyNack(interest, pitToken)
		return
	}

	var payload []byte
	if fi.IsDir() {
		listing, err := s.listing(path)
		if err != nil {
			s.replyNack(interest, pitToken)
			return
		}
		payload, err = sliceSegment(listing, seg, s.opts.SegmentSize)
		if err != nil {
			s.replyNack(interest, pitToken)
			return
		}
	} else {
		payload, err = s.readSegment(full, uint64(fi.Size()), seg)
		if err != nil {
			s.replyNack(interest, pitToken)
			return
		}
	}

	data, err := spec.Spec{}.MakeData(interest.Name(), &ndn.DataConfig{
		ContentType: optional.Some(ndn.ContentTypeBlob),
		Freshness:   optional.Some(s.opts.Freshness),
	}, enc.Wire{payload}, s.signer)
	if err != nil {
		log.Error(s, "Failed to encode segment", "err", err)
		return
	}

	s.putData(data.Wire, pitToken)
}

func (s *Server) readSegment(full string, size uint64, seg uint64) ([]byte, error) {
	offset := seg * s.opts.SegmentSize
	if offset >= size && !(size == 0 && seg == 0) {
		return nil, fmt.Errorf("segment %d out of range", seg)
	}

	cf, err := s.files.acquire(full)
	if err != nil {
		return nil, err
	}
	defer s.files.release(cf)

	want := min(s.opts.SegmentSize, size-offset)
	buf := make([]byte, want)
	n, err := cf.file.ReadAt(buf, int64(offset))
	if err != nil && uint64(n) != want {
		return nil, err
	}
	return buf[:n], nil
}

func (s *Server) listing(path string) ([]byte, error) {
	dirents, err := os.ReadDir(s.resolve(path))
	if err != nil {
		return nil, err
	}
	children := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		children = append(children, Entry{Path: de.Name(), IsDir: de.IsDir()})
	}
	return buildListing(children), nil
}

func sliceSegment(blob []byte, seg uint64, segmentSize uint64) ([]byte, error) {
	offset := seg * segmentSize
	if offset >= uint64(len(blob)) && !(len(blob) == 0 && seg == 0) {
		return nil, fmt.Errorf("segment %d out of range", seg)
	}
	end := min(offset+segmentSize, uint64(len(blob)))
	return blob[offset:end], nil
}

// replyNack answers with a ContentType Nack Data: the producer's only
// user-visible failure mode.
func (s *Server) replyNack(interest ndn.Interest, pitToken []byte) {
	data, err := spec.Spec{}.MakeData(interest.Name(), &ndn.DataConfig{
		ContentType: optional.Some(ndn.ContentTypeNack),
		Freshness:   optional.Some(metadataFreshness),
	}, nil, s.signer)
	if err != nil {
		log.Error(s, "Failed to encode nack", "err", err)
		return
	}
	metricServerNacks.Inc()
	s.putData(data.Wire, pitToken)
}

func (s *Server) putData(wire enc.Wire, pitToken []byte) {
	if err := s.handler.PutData(wire, pitToken); err != nil {
		log.Warn(s, "Failed to send data", "err", err)
		return
	}
	metricServerData.Inc()
}
