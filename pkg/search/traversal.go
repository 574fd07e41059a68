package search

// traversal is the memory kept between steps by the stateful strategies.
type traversal struct {
	// follow the leader
	leader    uint32
	hasLeader bool
	lastMoved uint32

	// frontier wave; frontier[head:] is pending
	frontier []uint32
	head     int
	visited  []bool
	seen     []uint32 // nodes marked in visited, for cheap reset
}

func newTraversal(numNodes int) traversal {
	return traversal{lastMoved: NoNode, visited: make([]bool, numNodes)}
}

func (t *traversal) resetLeader() {
	t.hasLeader = false
	t.lastMoved = NoNode
}

func (t *traversal) resetFrontier() {
	t.frontier = t.frontier[:0]
	t.head = 0
	for _, n := range t.seen {
		t.visited[n] = false
	}
	t.seen = t.seen[:0]
}

func (t *traversal) reset() {
	t.resetLeader()
	t.resetFrontier()
}

func (t *traversal) pending() []uint32 { return t.frontier[t.head:] }

// push appends n, first sliding the pending tail down once the consumed
// prefix is at least half the slice.
func (t *traversal) push(n uint32) {
	if t.head > 0 && t.head >= len(t.frontier)/2 {
		k := copy(t.frontier, t.frontier[t.head:])
		t.frontier = t.frontier[:k]
		t.head = 0
	}
	t.frontier = append(t.frontier, n)
}

// pop removes the next pending node, from the front when fifo and from the
// back otherwise.
func (t *traversal) pop(fifo bool) uint32 {
	var n uint32
	if fifo {
		n = t.frontier[t.head]
		t.head++
	} else {
		n = t.frontier[len(t.frontier)-1]
		t.frontier = t.frontier[:len(t.frontier)-1]
	}
	if t.head == len(t.frontier) {
		t.frontier = t.frontier[:0]
		t.head = 0
	}
	return n
}

func (t *traversal) visit(n uint32) {
	if !t.visited[n] {
		t.visited[n] = true
		t.seen = append(t.seen, n)
	}
}

// propose returns the next candidate node and its receiving region.
func (e *Engine) propose(s Strategy) (node, recv uint32, ok bool) {
	switch s {
	case FollowTheLeader:
		return e.proposeLeader()
	case BFS, DFS:
		return e.proposeFrontier(s == BFS)
	default:
		recv = e.sampler.Region()
		node, ok = e.sampler.BorderNode(recv, NoNode)
		return node, recv, ok
	}
}

func (e *Engine) proposeLeader() (uint32, uint32, bool) {
	t := &e.trav
	recv := t.leader
	if !t.hasLeader {
		recv = e.sampler.Region()
	}
	node, ok := e.sampler.BorderNode(recv, t.lastMoved)
	if !ok {
		t.resetLeader()
		return NoNode, 0, false
	}
	return node, recv, true
}

func (e *Engine) proposeFrontier(fifo bool) (uint32, uint32, bool) {
	t := &e.trav
	if len(t.pending()) == 0 {
		seed := e.st.Border(e.sampler.Region())
		e.rng.Shuffle(len(seed), func(i, j int) { seed[i], seed[j] = seed[j], seed[i] })
		t.resetFrontier()
		t.frontier = append(t.frontier, seed...)
	}
	for len(t.pending()) > 0 {
		n := t.pop(fifo)
		if t.visited[n] {
			continue
		}
		if recv, ok := e.st.ForeignNeighborRegion(n); ok {
			return n, recv, true
		}
	}
	t.resetFrontier()
	return NoNode, 0, false
}

// accepted updates strategy memory after a proposed move is kept.
func (e *Engine) accepted(s Strategy, node, donor, recv uint32) {
	t := &e.trav
	switch s {
	case FollowTheLeader:
		t.leader = donor
		t.hasLeader = true
		t.lastMoved = node
	case BFS, DFS:
		t.visit(node)
		for _, m := range e.st.Graph().Neighbors(node) {
			if !t.visited[m] && e.st.RegionOf(m) != recv {
				t.push(m)
			}
		}
	}
}
