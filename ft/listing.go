package ft

import (
	"strings"
	"sync"
)

// Directory listings travel as the directory's segmented object: child
// names separated by NUL, directories marked with a trailing slash.

func buildListing(children []Entry) []byte {
	var b strings.Builder
	for _, e := range children {
		b.WriteString(e.Path)
		if e.IsDir {
			b.WriteByte('/')
		}
		b.WriteByte(0)
	}
	return []byte(b.String())
}

func parseListing(payload []byte) []Entry {
	var entries []Entry
	for _, raw := range strings.Split(string(payload), "\x00") {
		if raw == "" {
			continue
		}
		if strings.HasSuffix(raw, "/") {
			entries = append(entries, Entry{Path: strings.TrimSuffix(raw, "/"), IsDir: true})
		} else {
			entries = append(entries, Entry{Path: raw})
		}
	}
	return entries
}

// memSink reassembles segments in memory; used for directory listings.
type memSink struct {
	mu  sync.Mutex
	buf []byte
}

func newMemSink(size uint64) *memSink {
	return &memSink{buf: make([]byte, size)}
}

func (s *memSink) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(s.buf)) {
		end = int64(len(s.buf))
	}
	if off >= int64(len(s.buf)) {
		return 0, nil
	}
	n := copy(s.buf[off:end], p)
	return n, nil
}

func (s *memSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf
}
