// Package search drives a stochastic hill climb over a partition.State:
// weighted proposal, tentative apply, contiguity and population checks,
// incremental scoring, accept or roll back, and replay of the best
// previously rejected moves.
package search

import (
	"fmt"
	"strings"
)

// NoNode is reported in Outcome.Node when no node was touched.
const NoNode = ^uint32(0)

// Target selects the objective the engine climbs.
type Target uint8

const (
	// SideA rewards regions that lean consistently positive.
	SideA Target = iota
	// SideB rewards regions that lean consistently negative.
	SideB
	// Balance rewards regions with average lean near zero.
	Balance
)

var targetNames = [...]string{"side_a", "side_b", "balance"}

func (t Target) String() string {
	if int(t) < len(targetNames) {
		return targetNames[t]
	}
	return fmt.Sprintf("target(%d)", t)
}

// ParseTarget accepts the String form and a few aliases.
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "side_a", "a", "republican", "gop":
		return SideA, nil
	case "side_b", "b", "democratic", "dem":
		return SideB, nil
	case "balance", "tie":
		return Balance, nil
	}
	return 0, fmt.Errorf("unknown target %q", s)
}

// Strategy selects how candidate moves are proposed.
type Strategy uint8

const (
	// Standard draws a region and a border node independently each step.
	Standard Strategy = iota
	// FollowTheLeader makes the last donor the next receiver.
	FollowTheLeader
	// BFS walks a shuffled frontier wave first in, first out.
	BFS
	// DFS walks the frontier wave last in, first out.
	DFS
)

var strategyNames = [...]string{"standard", "follow_the_leader", "bfs", "dfs"}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("strategy(%d)", s)
}

// ParseStrategy accepts the String form.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "":
		return Standard, nil
	case "follow_the_leader", "follow-the-leader", "ftl":
		return FollowTheLeader, nil
	case "bfs":
		return BFS, nil
	case "dfs":
		return DFS, nil
	}
	return 0, fmt.Errorf("unknown strategy %q", s)
}

// Status is the tri-state result of one step.
type Status uint8

const (
	Accepted Status = iota
	Rejected
	NoCandidate
)

var statusNames = [...]string{"accepted", "rejected", "no_candidate"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", s)
}

// Reason says why a step was rejected.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonContiguity
	ReasonPopulation
	ReasonScore
)

var reasonNames = [...]string{"none", "contiguity", "population", "score"}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("reason(%d)", r)
}

// Outcome describes one step. Node, Donor and Receiver describe the move
// that was attempted, or the replayed move when Replayed is set.
type Outcome struct {
	Status   Status
	Reason   Reason
	Replayed bool
	Node     uint32
	Donor    uint32
	Receiver uint32
	// Score is the objective after the step.
	Score float64
}

// Side labels a winner.
type Side uint8

const (
	WinnerSideA Side = iota
	WinnerSideB
	WinnerTie
)

var sideNames = [...]string{"side_a", "side_b", "tie"}

func (s Side) String() string {
	if int(s) < len(sideNames) {
		return sideNames[s]
	}
	return fmt.Sprintf("side(%d)", s)
}
