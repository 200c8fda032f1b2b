package dispute

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("SuccessfulCreation", func(t *testing.T) {
		escrowID := uuid.New()
		unitID := uuid.New()
		submittedBy := uuid.New()
		respondentID := uuid.New()

		before := time.Now()
		d, err := New(escrowID, &unitID, 250000, submittedBy, respondentID)

		require.NoError(t, err)
		require.NotNil(t, d)
		assert.NotEqual(t, uuid.Nil, d.ID)
		assert.Equal(t, escrowID, d.EscrowID)
		require.NotNil(t, d.PaymentUnitID)
		assert.Equal(t, unitID, *d.PaymentUnitID)
		assert.Equal(t, int64(250000), d.DisputeAmount)
		assert.Equal(t, shared.DisputeStatusSubmitted, d.Status)
		assert.False(t, d.SettlementPending)
		assert.WithinDuration(t, before.Add(ResponseWindow), d.ResponseDeadline, time.Second)
		assert.True(t, d.Open())
	})

	t.Run("EscrowLevelDispute", func(t *testing.T) {
		d, err := New(uuid.New(), nil, 100000, uuid.New(), uuid.New())
		require.NoError(t, err)
		assert.Nil(t, d.PaymentUnitID)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		d, err := New(uuid.New(), nil, 0, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, shared.ErrInvalidAmount)
		assert.Nil(t, d)
	})

	t.Run("SameParty", func(t *testing.T) {
		party := uuid.New()
		d, err := New(uuid.New(), nil, 100000, party, party)
		assert.ErrorIs(t, err, ErrSameParty)
		assert.Nil(t, d)
	})
}

func TestDispute_RequestMediation(t *testing.T) {
	t.Run("SuccessfulEscalation", func(t *testing.T) {
		d, err := New(uuid.New(), nil, 100000, uuid.New(), uuid.New())
		require.NoError(t, err)

		before := time.Now()
		err = d.RequestMediation("mediator@example.com")

		require.NoError(t, err)
		assert.Equal(t, shared.DisputeStatusMediation, d.Status)
		assert.Equal(t, "mediator@example.com", d.Mediator)
		require.NotNil(t, d.MediationDate)
		assert.WithinDuration(t, before.Add(MediationWindow), *d.MediationDate, time.Second)
		assert.True(t, d.Open(), "Mediation still freezes funds")
	})

	t.Run("OnlyFromSubmitted", func(t *testing.T) {
		d, err := New(uuid.New(), nil, 100000, uuid.New(), uuid.New())
		require.NoError(t, err)
		require.NoError(t, d.RequestMediation("mediator"))

		err = d.RequestMediation("another mediator")
		var transitionErr ErrInvalidDisputeTransition
		assert.ErrorAs(t, err, &transitionErr)
	})
}

func TestDispute_Resolve(t *testing.T) {
	t.Run("ResolveFromSubmitted", func(t *testing.T) {
		d, err := New(uuid.New(), nil, 100000, uuid.New(), uuid.New())
		require.NoError(t, err)

		err = d.Resolve("split the difference", 50000, "mediator@example.com")

		require.NoError(t, err)
		assert.Equal(t, shared.DisputeStatusResolved, d.Status)
		assert.Equal(t, "split the difference", d.Resolution)
		assert.Equal(t, int64(50000), d.ResolutionAmount)
		assert.Equal(t, "mediator@example.com", d.ResolvedBy)
		assert.False(t, d.Open())
	})

	t.Run("ResolveFromMediation", func(t *testing.T) {
		d, err := New(uuid.New(), nil, 100000, uuid.New(), uuid.New())
		require.NoError(t, err)
		require.NoError(t, d.RequestMediation("mediator"))

		require.NoError(t, d.Resolve("respondent prevails", 0, "mediator"))
		assert.Equal(t, shared.DisputeStatusResolved, d.Status)
	})

	t.Run("AlreadyResolved", func(t *testing.T) {
		d, err := New(uuid.New(), nil, 100000, uuid.New(), uuid.New())
		require.NoError(t, err)
		require.NoError(t, d.Resolve("done", 0, "mediator"))

		assert.ErrorIs(t, d.Resolve("again", 0, "mediator"), ErrAlreadyResolved)
	})

	t.Run("NegativeResolutionAmount", func(t *testing.T) {
		d, err := New(uuid.New(), nil, 100000, uuid.New(), uuid.New())
		require.NoError(t, err)
		assert.ErrorIs(t, d.Resolve("bad", -1, "mediator"), shared.ErrInvalidAmount)
	})
}

func TestDispute_FlagSettlementPending(t *testing.T) {
	d, err := New(uuid.New(), nil, 100000, uuid.New(), uuid.New())
	require.NoError(t, err)
	require.NoError(t, d.Resolve("pay claimant", 100000, "mediator"))
	version := d.Version

	d.FlagSettlementPending()

	assert.True(t, d.SettlementPending)
	assert.Equal(t, shared.DisputeStatusResolved, d.Status, "Settlement follow-up does not reopen the dispute")
	assert.Equal(t, version+1, d.Version)
}
