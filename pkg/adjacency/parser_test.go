package adjacency

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAdjacency = `County Name|County GEOID|Neighbor Name|Neighbor GEOID|Length
Autauga County, AL|01001|Autauga County, AL|01001|0
Autauga County, AL|01001|Chilton County, AL|01021|100
Chilton County, AL|01021|Autauga County, AL|01001|100
Chilton County, AL|01021|Coosa County, AL|01037|50
Aleutians East Borough, AK|02013|Aleutians West Census Area, AK|02016|10
Coosa County, AL|01037|Troup County, GA|13285|20
`

func TestParseAdjacency(t *testing.T) {
	res, err := Parse(context.Background(), strings.NewReader(sampleAdjacency), ParseOptions{
		ExcludeRegions: DefaultExcludeRegions,
	})
	require.NoError(t, err)

	require.Len(t, res.Nodes, 4, "AK dropped")
	assert.Equal(t, []NodeInfo{
		{ID: "01001", Name: "Autauga County", Region: "AL"},
		{ID: "01021", Name: "Chilton County", Region: "AL"},
		{ID: "01037", Name: "Coosa County", Region: "AL"},
		{ID: "13285", Name: "Troup County", Region: "GA"},
	}, res.Nodes)

	// Self pair is kept here; graph.Build drops it.
	assert.Len(t, res.Edges, 5)
	for _, e := range res.Edges {
		assert.NotEqual(t, "02013", e.From, "excluded edge survived: %+v", e)
		assert.NotEqual(t, "02016", e.To, "excluded edge survived: %+v", e)
	}
}

func TestParseAdjacencyBadID(t *testing.T) {
	in := "Autauga County, AL|01001|Chilton County, AL|01021\nBad, AL|x1|Chilton County, AL|01021\n"
	_, err := Parse(context.Background(), strings.NewReader(in), ParseOptions{})
	assert.Error(t, err, "non-numeric id after the first line")
}

func TestParseAdjacencyCancelled(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		b.WriteString("A, AL|01001|B, AL|01003\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Parse(ctx, strings.NewReader(b.String()), ParseOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitLabel(t *testing.T) {
	tests := []struct {
		in         string
		name, code string
	}{
		{"Autauga County, AL", "Autauga County", "AL"},
		{"Doña Ana County, nm", "Doña Ana County", "NM"},
		{"District of Columbia", "District of Columbia", ""},
	}
	for _, tt := range tests {
		name, code := splitLabel(tt.in)
		assert.Equal(t, tt.name, name, "splitLabel(%q)", tt.in)
		assert.Equal(t, tt.code, code, "splitLabel(%q)", tt.in)
	}
}

const sampleResults = `state_name,county_fips,county_name,votes_gop,votes_dem,total_votes,diff,per_gop,per_dem,per_point_diff
Alabama,1001,Autauga County,300,100,400,200,0.75,0.25,0.5
Alabama,01021,Chilton County,100,300,400,200,0.25,0.75,-0.5
Alaska,2013,Aleutians East Borough,10,10,20,0,0.5,0.5,0
Georgia,13285,Troup County,0,0,0,0,0,0,0
`

func TestParseResults(t *testing.T) {
	attrs, err := ParseResults(context.Background(), strings.NewReader(sampleResults), ResultsOptions{
		ExcludeStates: DefaultExcludeStates,
	})
	require.NoError(t, err)
	require.Len(t, attrs, 3)
	assert.Equal(t, int64(400), attrs["01001"].Population)
	assert.InDelta(t, 0.5, attrs["01001"].Lean, 1e-12)
	assert.InDelta(t, -0.5, attrs["01021"].Lean, 1e-12)
	assert.Zero(t, attrs["13285"], "zero-vote county")
}

func TestParseResultsUnknownCounty(t *testing.T) {
	known := map[string]bool{"01001": true}

	attrs, err := ParseResults(context.Background(), strings.NewReader(sampleResults), ResultsOptions{
		ExcludeStates: DefaultExcludeStates,
		Known:         known,
	})
	require.NoError(t, err, "lenient")
	assert.Len(t, attrs, 1)

	_, err = ParseResults(context.Background(), strings.NewReader(sampleResults), ResultsOptions{
		ExcludeStates: DefaultExcludeStates,
		Known:         known,
		Strict:        true,
	})
	assert.Error(t, err, "strict mode rejects an unknown county")
}

func TestNormalizeFIPS(t *testing.T) {
	tests := map[string]string{
		"1001":  "01001",
		"01001": "01001",
		" 6037": "06037",
		"abc":   "abc",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeFIPS(in), "NormalizeFIPS(%q)", in)
	}
}

func TestSyntheticDeterministic(t *testing.T) {
	nodes := []NodeInfo{
		{ID: "1", Region: "AA"}, {ID: "2", Region: "AA"},
		{ID: "3", Region: "BB"}, {ID: "4", Region: "BB"},
	}
	a := Synthetic(nodes, 7)
	b := Synthetic(nodes, 7)
	require.Len(t, a, len(nodes))
	assert.Equal(t, a, b, "same seed, same attributes")
	for id, attr := range a {
		assert.GreaterOrEqual(t, attr.Population, int64(1000), "node %s", id)
		assert.Less(t, attr.Population, int64(100000), "node %s", id)
	}
}

func TestFlip(t *testing.T) {
	nodes := []NodeInfo{{ID: "1", Region: "AA"}, {ID: "2", Region: "BB"}}
	attrs := Attributes{"1": {Population: 10, Lean: 0.3}, "2": {Population: 10, Lean: 0.3}}
	attrs.Flip(nodes, []string{"aa"})
	assert.Equal(t, -0.3, attrs["1"].Lean, "flipped")
	assert.Equal(t, 0.3, attrs["2"].Lean, "unflipped")
}
