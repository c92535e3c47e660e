package face

import "time"

// scheduleEntry is one pending deadline: seq breaks ties between entries
// expressed for the same instant so timeouts fire in insertion order.
type scheduleEntry struct {
	deadline time.Time
	seq      uint64
	token    uint64
}

// scheduleHeap is a min-heap over (deadline, seq).
type scheduleHeap struct {
	entries []scheduleEntry
}

func (s *scheduleHeap) Len() int {
	return len(s.entries)
}

func (s *scheduleHeap) Less(i, j int) bool {
	a, b := s.entries[i], s.entries[j]
	if a.deadline.Equal(b.deadline) {
		return a.seq < b.seq
	}
	return a.deadline.Before(b.deadline)
}

func (s *scheduleHeap) Swap(i, j int) {
	s.entries[i], s.entries[j] = s.entries[j], s.entries[i]
}

func (s *scheduleHeap) Push(x any) {
	s.entries = append(s.entries, x.(scheduleEntry))
}

func (s *scheduleHeap) Pop() any {
	old := s.entries
	n := len(old)
	entry := old[n-1]
	s.entries = old[:n-1]
	return entry
}
