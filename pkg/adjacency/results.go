package adjacency

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownCounty is returned in strict mode when a results row names a
// county that is not in the adjacency data.
var ErrUnknownCounty = errors.New("unknown county")

// Attribute is the per-county input to the optimizer.
type Attribute struct {
	Population int64
	Lean       float64
}

// Attributes maps county id to its attributes.
type Attributes map[string]Attribute

// DefaultExcludeStates matches DefaultExcludeRegions by full state name, the
// form used in results files.
var DefaultExcludeStates = []string{"Alaska", "Hawaii"}

// ResultsOptions controls ParseResults.
type ResultsOptions struct {
	ExcludeStates []string
	// Known, when set, restricts output to these county ids. Rows for other
	// ids are an error if Strict, otherwise counted and dropped.
	Known  map[string]bool
	Strict bool
	Logger *slog.Logger
}

// ParseResults reads a county-level results CSV with a header row and columns
//
//	state_name, county_fips, county_name, votes_gop, votes_dem, ...
//
// Lean is (gop-dem)/(gop+dem) and population is gop+dem.
func ParseResults(ctx context.Context, r io.Reader, opts ResultsOptions) (Attributes, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	excluded := make(map[string]bool, len(opts.ExcludeStates))
	for _, s := range opts.ExcludeStates {
		excluded[strings.ToLower(strings.TrimSpace(s))] = true
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	attrs := make(Attributes)
	var unknown, rows int
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read results: %w", err)
		}
		rows++
		if rows%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(rec) < 5 {
			return nil, fmt.Errorf("results row %d: expected at least 5 columns, got %d", rows, len(rec))
		}
		if excluded[strings.ToLower(strings.TrimSpace(rec[0]))] {
			continue
		}
		id := NormalizeFIPS(rec[1])
		if opts.Known != nil && !opts.Known[id] {
			if opts.Strict {
				return nil, fmt.Errorf("results row %d: county %s (%s): %w", rows, id, rec[2], ErrUnknownCounty)
			}
			unknown++
			continue
		}
		gop, err := strconv.ParseInt(strings.TrimSpace(rec[3]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("results row %d: votes_gop: %w", rows, err)
		}
		dem, err := strconv.ParseInt(strings.TrimSpace(rec[4]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("results row %d: votes_dem: %w", rows, err)
		}
		if gop < 0 || dem < 0 {
			return nil, fmt.Errorf("results row %d: negative vote count", rows)
		}
		total := gop + dem
		var lean float64
		if total > 0 {
			lean = float64(gop-dem) / float64(total)
		}
		attrs[id] = Attribute{Population: total, Lean: lean}
	}

	if unknown > 0 {
		logger.Warn("results rows for unknown counties dropped", "count", unknown)
	}
	logger.Info("parsed results", "counties", len(attrs))
	return attrs, nil
}

// NormalizeFIPS left-pads numeric county codes to five digits, since results
// files often drop the leading zero of the state code.
func NormalizeFIPS(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || len(s) >= 5 || !isNumeric(s) {
		return s
	}
	return strings.Repeat("0", 5-len(s)) + s
}

// Synthetic generates attributes for nodes: each home region draws a center
// X ~ U(-20, 20); each node then draws lean ~ N(X, |X|+1) and a population
// uniformly in [1000, 100000). The output depends only on seed and nodes.
func Synthetic(nodes []NodeInfo, seed int64) Attributes {
	rng := rand.New(rand.NewSource(seed))

	byRegion := make(map[string][]string)
	for _, n := range nodes {
		byRegion[n.Region] = append(byRegion[n.Region], n.ID)
	}
	regions := make([]string, 0, len(byRegion))
	for r := range byRegion {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	attrs := make(Attributes, len(nodes))
	for _, r := range regions {
		center := rng.Float64()*40 - 20
		spread := math.Abs(center) + 1
		for _, id := range byRegion[r] {
			attrs[id] = Attribute{
				Population: 1000 + rng.Int63n(99000),
				Lean:       center + rng.NormFloat64()*spread,
			}
		}
	}
	return attrs
}

// Flip swaps the two sides for every node whose home region is listed.
func (a Attributes) Flip(nodes []NodeInfo, regions []string) {
	set := make(map[string]bool, len(regions))
	for _, r := range regions {
		set[strings.ToUpper(strings.TrimSpace(r))] = true
	}
	for _, n := range nodes {
		if !set[n.Region] {
			continue
		}
		if attr, ok := a[n.ID]; ok {
			attr.Lean = -attr.Lean
			a[n.ID] = attr
		}
	}
}
