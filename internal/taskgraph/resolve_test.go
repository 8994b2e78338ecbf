package taskgraph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submind/internal/types"
)

func TestResolve_EdgesAndUnresolved(t *testing.T) {
	nodes := []Node{
		{ID: 1, Name: "Research competitors"},
		{ID: 2, Name: "Write pitch", DependsOn: []string{"research competitors ", "Hire designer"}},
		{ID: 3, Name: "Draft outline", DependsOn: []string{"Write pitch"}},
	}

	res, err := Resolve(nodes)
	require.NoError(t, err)

	wantEdges := []Edge{{From: 2, To: 1}, {From: 3, To: 2}}
	if diff := cmp.Diff(wantEdges, res.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}

	wantIssues := []types.DependencyIssue{
		{TaskID: 2, TaskName: "Write pitch", Kind: types.IssueUnresolved, Reference: "hire designer"},
	}
	if diff := cmp.Diff(wantIssues, res.Issues); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_CyclesFlaggedNotRejected(t *testing.T) {
	nodes := []Node{
		{ID: 10, Name: "A", DependsOn: []string{"B"}},
		{ID: 11, Name: "B", DependsOn: []string{"A"}},
		{ID: 12, Name: "C", DependsOn: []string{"C"}},
		{ID: 13, Name: "D", DependsOn: []string{"A"}},
	}

	res, err := Resolve(nodes)
	require.NoError(t, err)
	assert.Len(t, res.Edges, 4)

	var cyclic []int64
	for _, i := range res.Issues {
		assert.Equal(t, types.IssueCyclic, i.Kind)
		cyclic = append(cyclic, i.TaskID)
	}
	assert.Equal(t, []int64{10, 11, 12}, cyclic, "D depends on a cycle but is not on one")
}

func TestResolve_DuplicateNamesFirstWins(t *testing.T) {
	nodes := []Node{
		{ID: 1, Name: "Setup"},
		{ID: 2, Name: "setup"},
		{ID: 3, Name: "Ship", DependsOn: []string{"SETUP", ""}},
	}
	res, err := Resolve(nodes)
	require.NoError(t, err)
	assert.Equal(t, []Edge{{From: 3, To: 1}}, res.Edges)
	assert.Empty(t, res.Issues)
}

func TestResolve_Empty(t *testing.T) {
	res, err := Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Edges)
	assert.Empty(t, res.Issues)
}
