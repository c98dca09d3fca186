package navigation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationSequence_VisitsEveryEdgeOnce(t *testing.T) {
	p := newPathfinder(t)

	seq, err := p.ValidationSequence(context.Background(), "tree-1", testTeam)
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, tr := range seq {
		seen[tr.EdgeID]++
	}
	assert.Len(t, seen, 3, "every edge appears")
	for edgeID, count := range seen {
		assert.Equal(t, 1, count, "edge %s visited exactly once", edgeID)
	}
}

func TestValidationSequence_EmitsReturnEdgeAfterChild(t *testing.T) {
	p := newPathfinder(t)

	seq, err := p.ValidationSequence(context.Background(), "tree-1", testTeam)
	require.NoError(t, err)
	require.Len(t, seq, 3)

	// home -> live, then dive into live's subtree (live -> settings),
	// then the return edge live -> home on the way back.
	assert.Equal(t, "e1", seq[0].EdgeID)
	assert.Equal(t, "e2", seq[1].EdgeID)
	assert.Equal(t, "e3", seq[2].EdgeID)
}

func TestValidationSequence_NumbersAreSequential(t *testing.T) {
	p := newPathfinder(t)

	seq, err := p.ValidationSequence(context.Background(), "tree-1", testTeam)
	require.NoError(t, err)
	for i, tr := range seq {
		assert.Equal(t, i+1, tr.TransitionNumber)
	}
}
