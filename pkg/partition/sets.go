package partition

// nodeSet is an insertion-ordered set of node indices with O(1) add and
// swap-remove. Iteration order is deterministic for a given operation order.
type nodeSet struct {
	items []uint32
	pos   map[uint32]int32
}

func newNodeSet() nodeSet {
	return nodeSet{pos: make(map[uint32]int32)}
}

func (s *nodeSet) add(n uint32) bool {
	if _, ok := s.pos[n]; ok {
		return false
	}
	s.pos[n] = int32(len(s.items))
	s.items = append(s.items, n)
	return true
}

func (s *nodeSet) remove(n uint32) bool {
	i, ok := s.pos[n]
	if !ok {
		return false
	}
	last := len(s.items) - 1
	moved := s.items[last]
	s.items[i] = moved
	s.pos[moved] = i
	s.items = s.items[:last]
	delete(s.pos, n)
	return true
}

func (s *nodeSet) has(n uint32) bool {
	_, ok := s.pos[n]
	return ok
}

func (s *nodeSet) len() int { return len(s.items) }

// regionCount is one entry of a node's neighbor-region histogram.
type regionCount struct {
	region uint32
	count  int32
}

// regionCounts records, for one node, how many of its neighbors sit in each
// region. Degrees are small, so a linear slice beats a map.
type regionCounts []regionCount

func (rc regionCounts) get(r uint32) int32 {
	for _, e := range rc {
		if e.region == r {
			return e.count
		}
	}
	return 0
}

// inc adds one to region r and returns the new count.
func (rc *regionCounts) inc(r uint32) int32 {
	for i := range *rc {
		if (*rc)[i].region == r {
			(*rc)[i].count++
			return (*rc)[i].count
		}
	}
	*rc = append(*rc, regionCount{region: r, count: 1})
	return 1
}

// dec subtracts one from region r, dropping the entry at zero, and returns
// the new count.
func (rc *regionCounts) dec(r uint32) int32 {
	s := *rc
	for i := range s {
		if s[i].region != r {
			continue
		}
		s[i].count--
		c := s[i].count
		if c == 0 {
			last := len(s) - 1
			s[i] = s[last]
			*rc = s[:last]
		}
		return c
	}
	return 0
}
