package chat

// Unread returns the counter for one thread.
func (s *ThreadStore) Unread(threadID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[threadID]
}

// TotalUnread is the badge count. It is always recomputed from the
// per-thread counters; there is no stored total to drift.
func (s *ThreadStore) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for id, n := range s.unread {
		if _, ok := s.threads[id]; ok && n > 0 {
			total += n
		}
	}
	return total
}

// UnreadCounts returns a copy of every non-zero counter.
func (s *ThreadStore) UnreadCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.unread))
	for id, n := range s.unread {
		if n > 0 {
			out[id] = n
		}
	}
	return out
}
