package partition

// Connected reports whether region r's members form a single connected
// component of the graph restricted to r. An empty region is not connected.
func (s *State) Connected(r uint32) bool {
	list := s.members[r]
	if len(list) == 0 {
		return false
	}
	if len(list) == 1 {
		return true
	}

	s.epoch++
	if s.epoch == 0 {
		// Wrapped: clear stale stamps once.
		for i := range s.mark {
			s.mark[i] = 0
		}
		s.epoch = 1
	}
	epoch := s.epoch

	start := list[0]
	s.mark[start] = epoch
	queue := append(s.queue[:0], start)
	reached := 1
	for head := 0; head < len(queue); head++ {
		u := queue[head]
		for _, v := range s.g.Neighbors(u) {
			if s.region[v] != r || s.mark[v] == epoch {
				continue
			}
			s.mark[v] = epoch
			reached++
			queue = append(queue, v)
		}
	}
	s.queue = queue[:0]
	return reached == len(list)
}

// Disconnected returns every region that is empty or not connected, in
// ascending order.
func (s *State) Disconnected() []uint32 {
	var bad []uint32
	for r := 0; r < s.numRegions; r++ {
		if !s.Connected(uint32(r)) {
			bad = append(bad, uint32(r))
		}
	}
	return bad
}
