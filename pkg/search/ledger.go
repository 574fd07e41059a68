package search

import "slices"

// DefaultLedgerCap bounds the rejected-move ledger when no cap is configured.
const DefaultLedgerCap = 4096

// ledgerEntry is a move that passed contiguity and population checks but
// lost on score. negScore is the negated score the move would have produced,
// so the min-heap yields the best candidate first.
type ledgerEntry struct {
	negScore float64
	node     uint32
	receiver uint32
	donor    uint32
}

func (a ledgerEntry) less(b ledgerEntry) bool {
	if a.negScore != b.negScore {
		return a.negScore < b.negScore
	}
	if a.node != b.node {
		return a.node < b.node
	}
	if a.receiver != b.receiver {
		return a.receiver < b.receiver
	}
	return a.donor < b.donor
}

// ledger is a concrete-typed binary min-heap of rejected moves.
type ledger struct {
	items []ledgerEntry
}

func (h *ledger) Len() int { return len(h.items) }

func (h *ledger) Push(e ledgerEntry) {
	h.items = append(h.items, e)
	h.siftUp(len(h.items) - 1)
}

func (h *ledger) Pop() ledgerEntry {
	top := h.items[0]
	n := len(h.items) - 1
	h.items[0] = h.items[n]
	h.items = h.items[:n]
	if n > 0 {
		h.siftDown(0)
	}
	return top
}

func (h *ledger) siftUp(i int) {
	item := h.items[i]
	for i > 0 {
		parent := (i - 1) / 2
		if !item.less(h.items[parent]) {
			break
		}
		h.items[i] = h.items[parent]
		i = parent
	}
	h.items[i] = item
}

func (h *ledger) siftDown(i int) {
	n := len(h.items)
	item := h.items[i]
	for {
		child := 2*i + 1
		if child >= n {
			break
		}
		if right := child + 1; right < n && h.items[right].less(h.items[child]) {
			child = right
		}
		if !h.items[child].less(item) {
			break
		}
		h.items[i] = h.items[child]
		i = child
	}
	h.items[i] = item
}

// trim keeps the n best entries. A sorted slice is already a valid heap.
func (h *ledger) trim(n int) {
	if n < 0 {
		n = 0
	}
	if len(h.items) <= n {
		return
	}
	slices.SortFunc(h.items, func(a, b ledgerEntry) int {
		if a.less(b) {
			return -1
		}
		if b.less(a) {
			return 1
		}
		return 0
	})
	h.items = h.items[:n]
}

func (h *ledger) Reset() {
	h.items = h.items[:0]
}
