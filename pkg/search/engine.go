package search

import (
	"math/rand"

	"redistrict/pkg/partition"
)

// Options configures an Engine.
type Options struct {
	// LedgerCap bounds the rejected-move ledger. Zero means DefaultLedgerCap.
	LedgerCap int
	// Seed drives every random draw the engine makes.
	Seed int64
}

// Engine runs hill-climbing steps against a partition. It is not safe for
// concurrent use; callers serialize Step, Snapshot and Restore.
type Engine struct {
	st      *partition.State
	opts    Options
	rng     *rand.Rand
	sampler *sampler
	scores  scoreCache
	ledger  ledger
	stuck   int
	trav    traversal
}

// NewEngine wraps st. The engine becomes the only writer of st.
func NewEngine(st *partition.State, opts Options) *Engine {
	if opts.LedgerCap <= 0 {
		opts.LedgerCap = DefaultLedgerCap
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	return &Engine{
		st:      st,
		opts:    opts,
		rng:     rng,
		sampler: newSampler(st, rng),
		trav:    newTraversal(st.NumNodes()),
	}
}

// State returns the partition. Callers must not mutate it.
func (e *Engine) State() *partition.State { return e.st }

// LedgerLen returns the number of rejected moves held for replay.
func (e *Engine) LedgerLen() int { return e.ledger.Len() }

// Stuck returns the number of score rejections since the last acceptance.
func (e *Engine) Stuck() int { return e.stuck }

// Step proposes one move with strategy s and keeps it if it is valid and
// does not lower the score for target t. After a score rejection the best
// ledger entry is replayed with probability alpha.
func (e *Engine) Step(t Target, s Strategy, alpha float64) Outcome {
	e.scores.ensure(e.st, t)
	before := e.scores.total

	node, recv, ok := e.propose(s)
	if !ok {
		return Outcome{Status: NoCandidate, Node: NoNode, Score: before}
	}
	donor := e.st.RegionOf(node)
	out := Outcome{Status: Rejected, Node: node, Donor: donor, Receiver: recv, Score: before}

	u := e.st.Apply(node, recv)
	if !e.st.Connected(donor) {
		e.st.Rollback(u)
		out.Reason = ReasonContiguity
		return out
	}
	if !e.st.PopulationOK() {
		e.st.Rollback(u)
		out.Reason = ReasonPopulation
		return out
	}

	save := e.scores.update(e.st, donor, recv)
	after := e.scores.total
	if after >= before {
		e.commit()
		e.accepted(s, node, donor, recv)
		out.Status = Accepted
		out.Score = after
		return out
	}

	e.scores.restore(save, donor, recv)
	e.st.Rollback(u)
	e.stuck++
	e.ledger.Push(ledgerEntry{negScore: -after, node: node, receiver: recv, donor: donor})
	e.ledger.trim(min(e.stuck, e.opts.LedgerCap))

	if alpha > 0 && e.rng.Float64() < alpha {
		if replayed, ok := e.replay(); ok {
			return replayed
		}
	}
	out.Reason = ReasonScore
	return out
}

// commit finalizes the pending move and resets rejection tracking.
func (e *Engine) commit() {
	e.sampler.committed(e.st.Commit())
	e.ledger.Reset()
	e.stuck = 0
}

// replay pops ledger entries best first and executes the first one that is
// still applicable and valid, regardless of score.
func (e *Engine) replay() (Outcome, bool) {
	for e.ledger.Len() > 0 {
		en := e.ledger.Pop()
		if e.st.RegionOf(en.node) != en.donor || !e.st.InBorder(en.receiver, en.node) {
			continue
		}
		u := e.st.Apply(en.node, en.receiver)
		if !e.st.Connected(en.donor) || !e.st.PopulationOK() {
			e.st.Rollback(u)
			continue
		}
		e.scores.update(e.st, en.donor, en.receiver)
		e.commit()
		return Outcome{
			Status:   Accepted,
			Replayed: true,
			Node:     en.node,
			Donor:    en.donor,
			Receiver: en.receiver,
			Score:    e.scores.total,
		}, true
	}
	return Outcome{}, false
}

// Score returns the objective for target t.
func (e *Engine) Score(t Target) float64 {
	e.scores.ensure(e.st, t)
	return e.scores.total
}

// Winner compares the summed weight of regions leaning positive against
// everything else.
func (e *Engine) Winner() (Side, int64, int64) {
	var a, b int64
	for r := 0; r < e.st.NumRegions(); r++ {
		w := e.st.Weight(uint32(r))
		if e.st.AverageLean(uint32(r)) > 0 {
			a += w
		} else {
			b += w
		}
	}
	switch {
	case a > b:
		return WinnerSideA, a, b
	case b > a:
		return WinnerSideB, a, b
	default:
		return WinnerTie, a, b
	}
}

// Snapshot captures the partition.
func (e *Engine) Snapshot() partition.Snapshot { return e.st.Snapshot() }

// Restore replaces the partition with snap and drops every derived cache,
// the ledger and strategy memory.
func (e *Engine) Restore(snap partition.Snapshot) error {
	if err := e.st.Restore(snap); err != nil {
		return err
	}
	e.Reset()
	return nil
}

// Reset forgets the ledger, strategy memory and cached scores without
// touching the partition.
func (e *Engine) Reset() {
	e.scores.invalidate()
	e.sampler.invalidateAll()
	e.ledger.Reset()
	e.stuck = 0
	e.trav.reset()
}
