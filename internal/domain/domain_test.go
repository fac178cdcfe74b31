package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to CheckoutStatus
		want     bool
	}{
		{CheckoutStatusNotStarted, CheckoutStatusProfileSaving, true},
		{CheckoutStatusNotStarted, CheckoutStatusSessionRequested, false},
		{CheckoutStatusProfileSaving, CheckoutStatusProfileSaved, true},
		{CheckoutStatusProfileSaving, CheckoutStatusNotStarted, true},
		{CheckoutStatusProfileSaving, CheckoutStatusSessionRequested, false},
		{CheckoutStatusProfileSaved, CheckoutStatusSessionRequested, true},
		{CheckoutStatusProfileSaved, CheckoutStatusCompleted, false},
		{CheckoutStatusProfileSaved, CheckoutStatusNotStarted, true},
		{CheckoutStatusSessionRequested, CheckoutStatusNotStarted, false},
		{CheckoutStatusSessionRequested, CheckoutStatusCompleted, true},
		{CheckoutStatusSessionRequested, CheckoutStatusFailed, true},
		{CheckoutStatusSessionRequested, CheckoutStatusSessionRequested, false},
		{CheckoutStatusCompleted, CheckoutStatusFailed, false},
		{CheckoutStatusFailed, CheckoutStatusNotStarted, false},
		{CheckoutStatus("BOGUS"), CheckoutStatusProfileSaving, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionTo(tt.from, tt.to))
		})
	}
}

func TestAttemptAdvance(t *testing.T) {
	a := &Attempt{State: NotStarted{}}

	require.NoError(t, a.Advance(ProfileSaving{}))
	require.NoError(t, a.Advance(ProfileSaved{}))

	err := a.Advance(Completed{SessionID: "cs_1"})
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, CheckoutStatusProfileSaved, a.State.Status())

	require.NoError(t, a.Advance(SessionRequested{}))
	require.NoError(t, a.Advance(Completed{SessionID: "cs_1", RedirectURL: "https://pay"}))
	assert.True(t, a.State.Status().IsTerminal())

	err = a.Advance(Failed{Reason: "late"})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestStateFromRecord(t *testing.T) {
	s, err := StateFromRecord(CheckoutStatusCompleted, "cs_1", "https://pay", "")
	require.NoError(t, err)
	assert.Equal(t, Completed{SessionID: "cs_1", RedirectURL: "https://pay"}, s)

	s, err = StateFromRecord(CheckoutStatusFailed, "", "", "card_declined")
	require.NoError(t, err)
	assert.Equal(t, Failed{Reason: "card_declined"}, s)

	_, err = StateFromRecord("UNKNOWN", "", "", "")
	assert.Error(t, err)
}

func TestShippingProfileValidate(t *testing.T) {
	err := ShippingProfile{Name: "  ", Email: "a@b.c", ShippingAddress: "\t"}.Validate()
	require.Error(t, err)

	var incomplete *IncompleteProfileError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []string{"name", "shipping_address"}, incomplete.Missing)
	assert.ErrorIs(t, err, ErrIncompleteProfile)
	assert.ErrorIs(t, err, ErrValidation)

	assert.NoError(t, ShippingProfile{Name: "Ann", Email: "ann@example.com", ShippingAddress: "1 Main St"}.Validate())
}

func TestShippingProfileNormalize(t *testing.T) {
	p := ShippingProfile{Name: " Ann ", Email: " ann@example.com", ShippingAddress: "1 Main St \n"}.Normalize()
	assert.Equal(t, ShippingProfile{Name: "Ann", Email: "ann@example.com", ShippingAddress: "1 Main St"}, p)
}

func TestCatalogLookup(t *testing.T) {
	c := NewCatalog([]Product{
		{ID: "P1", Name: "Tee", Price: 2500, AvailableSizes: []string{"S", "M"}},
		{ID: "P2", Name: "Hoodie", Price: 5500},
	})

	p, ok := c.Lookup("P1")
	require.True(t, ok)
	assert.Equal(t, "Tee", p.Name)
	assert.True(t, p.HasSize("M"))
	assert.False(t, p.HasSize("XL"))

	_, ok = c.Lookup("P9")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestValidationErrorsShareParent(t *testing.T) {
	for _, err := range []error{ErrInvalidQuantity, ErrEmptyCart, ErrIncompleteProfile} {
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.NotErrorIs(t, ErrBackendUnavailable, ErrValidation)
}
