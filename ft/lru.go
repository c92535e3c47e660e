package ft

import (
	"container/list"
	"os"
	"sync"
)

// fileCache keeps recently served files open so consecutive segment
// Interests for the same file do not pay an open per packet. Evicted
// handles stay alive until their last reader releases them.
type fileCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	byPath   map[string]*list.Element
}

type cachedFile struct {
	path    string
	file    *os.File
	refs    int
	inCache bool
}

func newFileCache(capacity int) *fileCache {
	return &fileCache{
		capacity: capacity,
		ll:       list.New(),
		byPath:   make(map[string]*list.Element),
	}
}

// acquire returns an open handle for path, from cache or freshly opened.
// The caller must release it.
func (c *fileCache) acquire(path string) (*cachedFile, error) {
	c.mu.Lock()
	if elem, ok := c.byPath[path]; ok {
		c.ll.MoveToFront(elem)
		cf := elem.Value.(*cachedFile)
		cf.refs++
		c.mu.Unlock()
		return cf, nil
	}
	c.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// lost the race: another worker cached it meanwhile
	if elem, ok := c.byPath[path]; ok {
		c.ll.MoveToFront(elem)
		cf := elem.Value.(*cachedFile)
		cf.refs++
		f.Close()
		return cf, nil
	}

	cf := &cachedFile{path: path, file: f, refs: 2, inCache: true} // caller + cache
	c.byPath[path] = c.ll.PushFront(cf)

	for c.ll.Len() > c.capacity {
		c.evictLocked(c.ll.Back())
	}
	return cf, nil
}

func (c *fileCache) release(cf *cachedFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(cf)
}

func (c *fileCache) releaseLocked(cf *cachedFile) {
	cf.refs--
	if cf.refs == 0 && !cf.inCache {
		cf.file.Close()
	}
}

func (c *fileCache) evictLocked(elem *list.Element) {
	cf := elem.Value.(*cachedFile)
	c.ll.Remove(elem)
	delete(c.byPath, cf.path)
	cf.inCache = false
	c.releaseLocked(cf)
}

// purge drops every cached handle.
func (c *fileCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.ll.Len() > 0 {
		c.evictLocked(c.ll.Back())
	}
}
