package adjacency

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// RawEdge is an adjacency pair as listed in the source file. The list may be
// asymmetric and may contain self pairs; graph.Build normalizes both.
type RawEdge struct {
	From string
	To   string
}

// NodeInfo describes one county as it appears in the adjacency file.
type NodeInfo struct {
	ID     string // FIPS / GEOID
	Name   string // "Autauga County"
	Region string // home state abbreviation, "AL"
}

// ParseResult holds the output of parsing a county adjacency file.
type ParseResult struct {
	Nodes []NodeInfo // first-seen order
	Edges []RawEdge
}

// ParseOptions controls which rows survive parsing.
type ParseOptions struct {
	// ExcludeRegions drops every node whose home region is listed, along
	// with every edge touching it.
	ExcludeRegions []string
	Logger         *slog.Logger
}

// DefaultExcludeRegions are the non-contiguous states.
var DefaultExcludeRegions = []string{"AK", "HI"}

// Parse reads a pipe-separated adjacency file. Each line has the form
//
//	Name, ST|id|Neighbor Name, ST|neighbor id[|...]
//
// A header line (non-numeric id column) and blank lines are skipped.
func Parse(ctx context.Context, r io.Reader, opts ParseOptions) (*ParseResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	excluded := make(map[string]bool, len(opts.ExcludeRegions))
	for _, st := range opts.ExcludeRegions {
		excluded[strings.ToUpper(strings.TrimSpace(st))] = true
	}

	result := &ParseResult{}
	seen := make(map[string]int)

	addNode := func(id, label string) (string, bool) {
		name, region := splitLabel(label)
		if excluded[region] {
			return "", false
		}
		if idx, ok := seen[id]; ok {
			if result.Nodes[idx].Region == "" && region != "" {
				result.Nodes[idx].Name, result.Nodes[idx].Region = name, region
			}
			return id, true
		}
		seen[id] = len(result.Nodes)
		result.Nodes = append(result.Nodes, NodeInfo{ID: id, Name: name, Region: region})
		return id, true
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	var skipped int
	for sc.Scan() {
		lineNo++
		if lineNo%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 2 {
			return nil, fmt.Errorf("line %d: expected at least 2 fields, got %d", lineNo, len(parts))
		}
		id := strings.TrimSpace(parts[1])
		if !isNumeric(id) {
			if lineNo == 1 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: invalid county id %q", lineNo, id)
		}
		from, ok := addNode(id, parts[0])
		if !ok {
			skipped++
			continue
		}
		if len(parts) < 4 {
			continue
		}
		nid := strings.TrimSpace(parts[3])
		if !isNumeric(nid) {
			return nil, fmt.Errorf("line %d: invalid neighbor id %q", lineNo, nid)
		}
		to, ok := addNode(nid, parts[2])
		if !ok {
			skipped++
			continue
		}
		result.Edges = append(result.Edges, RawEdge{From: from, To: to})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan adjacency: %w", err)
	}

	logger.Info("parsed adjacency",
		"nodes", len(result.Nodes), "edges", len(result.Edges), "skipped_rows", skipped)
	return result, nil
}

// splitLabel splits "Autauga County, AL" into its name and state suffix.
func splitLabel(label string) (name, region string) {
	label = strings.TrimSpace(label)
	i := strings.LastIndex(label, ", ")
	if i < 0 {
		return label, ""
	}
	return label[:i], strings.ToUpper(strings.TrimSpace(label[i+2:]))
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
