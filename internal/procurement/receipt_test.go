package procurement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/workflow"
)

func line(qty, received string) POLine {
	return POLine{Qty: decimal.RequireFromString(qty), QtyReceived: decimal.RequireFromString(received)}
}

func TestDerivePOStatus(t *testing.T) {
	cases := []struct {
		name    string
		current POStatus
		lines   []POLine
		want    POStatus
	}{
		{"nothing received keeps sent", POStatusSent, []POLine{line("10", "0"), line("5", "0")}, POStatusSent},
		{"nothing received keeps in progress", POStatusInProgress, []POLine{line("10", "0")}, POStatusInProgress},
		{"one line partial", POStatusSent, []POLine{line("100", "60")}, POStatusPartiallyReceived},
		{"one line full other empty", POStatusSent, []POLine{line("10", "10"), line("5", "0")}, POStatusPartiallyReceived},
		{"all lines full", POStatusPartiallyReceived, []POLine{line("10", "10"), line("5", "5")}, POStatusFullyReceived},
		{"fractional remainder", POStatusSent, []POLine{line("2.5", "2.4999")}, POStatusPartiallyReceived},
		{"no lines", POStatusSent, nil, POStatusSent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DerivePOStatus(tc.current, tc.lines)
			require.Equal(t, tc.want, got)
			require.Equal(t, got, DerivePOStatus(got, tc.lines))
		})
	}
}

func TestPOLineRemainingNeverNegative(t *testing.T) {
	require.True(t, line("10", "4").Remaining().Equal(decimal.NewFromInt(6)))
	require.True(t, line("10", "12").Remaining().IsZero())
}

func TestReceivable(t *testing.T) {
	for _, status := range []POStatus{POStatusSent, POStatusInProgress, POStatusPartiallyReceived} {
		require.True(t, Receivable(status), status)
	}
	for _, status := range []POStatus{POStatusDraft, POStatusApproved, POStatusFullyReceived, POStatusClosed, POStatusCancelled} {
		require.False(t, Receivable(status), status)
	}
}

func TestMachines(t *testing.T) {
	admin := shared.SystemActor(1, shared.ProcurementScopes()...)

	to, err := PRMachine.Fire(admin, PRStatusConverted, workflow.ActionConvert)
	require.NoError(t, err)
	require.Equal(t, PRStatusConverted, to)
	_, err = PRMachine.Fire(admin, PRStatusConverted, workflow.ActionCancel)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	for _, from := range []POStatus{POStatusDraft, POStatusSubmitted, POStatusApproved, POStatusSent} {
		to, err := POMachine.Fire(admin, from, workflow.ActionCancel)
		require.NoError(t, err, from)
		require.Equal(t, POStatusCancelled, to)
	}
	for _, from := range []POStatus{POStatusInProgress, POStatusPartiallyReceived, POStatusFullyReceived} {
		_, err := POMachine.Fire(admin, from, workflow.ActionCancel)
		require.ErrorIs(t, err, shared.ErrInvalidTransition, from)
	}
	_, err = POMachine.Fire(admin, POStatusPartiallyReceived, workflow.ActionClose)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.True(t, POMachine.IsTerminal(POStatusClosed))

	clerk := shared.Actor{ID: 2, Permissions: []string{shared.PermGRNCreate}}
	_, err = GRNMachine.Fire(clerk, GRNStatusPosted, workflow.ActionPost)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = GRNMachine.Fire(admin, GRNStatusPosted, workflow.ActionPost)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}
