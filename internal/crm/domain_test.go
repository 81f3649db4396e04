package crm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidStage(t *testing.T) {
	for _, stage := range []string{StageLead, StageQualified, StageProposal, StageWon, StageLost} {
		require.True(t, ValidStage(stage), stage)
	}
	require.False(t, ValidStage("negotiation"))
	require.False(t, ValidStage(""))
}

func TestDealStageTransitions(t *testing.T) {
	open := Deal{Stage: StageProposal}
	require.False(t, open.Closed())
	require.True(t, open.CanMoveTo(StageWon))
	require.True(t, open.CanMoveTo(StageLead))
	require.False(t, open.CanMoveTo(StageProposal))
	require.False(t, open.CanMoveTo("negotiation"))

	for _, terminal := range []string{StageWon, StageLost} {
		closed := Deal{Stage: terminal}
		require.True(t, closed.Closed())
		require.False(t, closed.CanMoveTo(StageLead))
		require.False(t, closed.CanMoveTo(StageProposal))
	}
}
