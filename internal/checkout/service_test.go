package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var tee = domain.Product{ID: "P1", Name: "Classic Tee", AvailableSizes: []string{"M", "L"}, Price: 2500}

var validProfile = domain.ShippingProfile{Name: "Ada", Email: "ada@example.com", ShippingAddress: "1 Main St"}

type fixture struct {
	repo     *MockRepository
	summary  *MockSummary
	catalog  *MockCatalog
	profiles *MockProfiles
	provider *MockProvider
	service  *Service
}

func newFixture(configured bool) *fixture {
	f := &fixture{
		repo: NewMockRepository(),
		summary: &MockSummary{Result: domain.OrderSummary{
			TotalAmount: 5000,
			Items: []domain.SummaryItem{{
				ProductID: "P1", ProductName: "Classic Tee", Size: "M", Quantity: 2, UnitPrice: 2500, Subtotal: 5000,
			}},
		}},
		catalog:  &MockCatalog{Products: []domain.Product{tee}},
		profiles: &MockProfiles{},
		provider: &MockProvider{
			Session:  domain.Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"},
			Statuses: map[string]domain.SessionStatus{},
		},
	}
	f.service = NewService(f.repo, f.summary, f.catalog, f.profiles, f.provider, MockPayments{Configured: configured},
		Settings{PublicBaseURL: "https://shop.example/", Currency: "usd"}, zap.NewNop())
	return f
}

func TestCheckout_Success(t *testing.T) {
	f := newFixture(true)

	res, err := f.service.Checkout(context.Background(), Request{UserID: "user-1", Profile: validProfile})
	require.NoError(t, err)

	assert.Equal(t, domain.CheckoutStatusCompleted, res.Status)
	assert.Equal(t, "cs_test_1", res.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", res.RedirectURL)
	assert.EqualValues(t, 5000, res.TotalAmount)

	calls := f.provider.calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, res.AttemptID, req.IdempotencyKey)
	assert.Equal(t, "user-1", req.ClientRef)
	assert.Equal(t, "https://shop.example/payment-success?session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	assert.Equal(t, "https://shop.example/payment-failure", req.CancelURL)
	assert.Equal(t, []domain.LineItem{{
		ProductName:        "Classic Tee",
		ProductDescription: "Classic Tee - Size: M",
		PriceInCents:       2500,
		Quantity:           2,
		Currency:           "usd",
	}}, req.Items)

	assert.Equal(t, []domain.CheckoutStatus{
		domain.CheckoutStatusProfileSaving,
		domain.CheckoutStatusProfileSaved,
		domain.CheckoutStatusSessionRequested,
		domain.CheckoutStatusCompleted,
	}, f.repo.statuses())
	assert.Equal(t, 1, f.profiles.count())
}

func TestCheckout_EmptyCartStopsBeforeAnySideEffect(t *testing.T) {
	f := newFixture(true)
	f.summary.Result = domain.OrderSummary{}

	_, err := f.service.Checkout(context.Background(), Request{UserID: "user-1", Profile: validProfile})

	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, f.profiles.count())
	assert.Empty(t, f.provider.calls())
	assert.Equal(t, 0, f.repo.count())
}

func TestCheckout_OnlyUnresolvedLinesIsEmpty(t *testing.T) {
	f := newFixture(true)
	f.summary.Result = domain.OrderSummary{
		Unresolved: []domain.CartLine{{ProductID: "P9", Size: "M", Quantity: 1}},
	}

	_, err := f.service.Checkout(context.Background(), Request{UserID: "user-1", Profile: validProfile})

	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Empty(t, f.provider.calls())
}

func TestCheckout_Unauthenticated(t *testing.T) {
	f := newFixture(true)

	_, err := f.service.Checkout(context.Background(), Request{Profile: validProfile})

	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Equal(t, 0, f.profiles.count())
}

func TestCheckout_PaymentNotConfigured(t *testing.T) {
	f := newFixture(false)

	_, err := f.service.Checkout(context.Background(), Request{UserID: "user-1", Profile: validProfile})

	assert.ErrorIs(t, err, domain.ErrPaymentNotConfigured)
	assert.Empty(t, f.provider.calls())
	assert.Equal(t, 0, f.profiles.count())
}

func TestCheckout_ProfileSaveFailureRequestsNoSession(t *testing.T) {
	f := newFixture(true)
	f.profiles.Err = &domain.IncompleteProfileError{Missing: []string{"email"}}

	res, err := f.service.Checkout(context.Background(), Request{UserID: "user-1", IdempotencyKey: "k1"})

	assert.ErrorIs(t, err, domain.ErrProfileSaveFailed)
	assert.ErrorIs(t, err, domain.ErrIncompleteProfile)
	assert.Empty(t, f.provider.calls())
	assert.Equal(t, domain.CheckoutStatusNotStarted, res.Status)

	stored := f.repo.attempt(res.AttemptID)
	notStarted, ok := stored.State.(domain.NotStarted)
	require.True(t, ok)
	assert.Contains(t, notStarted.LastError, "email")
}

func TestCheckout_ResumesAttemptAfterProfileFix(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	f.profiles.Err = errors.New("db down")

	first, err := f.service.Checkout(ctx, Request{UserID: "user-1", IdempotencyKey: "k1", Profile: validProfile})
	require.ErrorIs(t, err, domain.ErrProfileSaveFailed)

	f.profiles.Err = nil
	second, err := f.service.Checkout(ctx, Request{UserID: "user-1", IdempotencyKey: "k1", Profile: validProfile})
	require.NoError(t, err)

	assert.Equal(t, first.AttemptID, second.AttemptID)
	assert.Equal(t, domain.CheckoutStatusCompleted, second.Status)
	assert.Len(t, f.provider.calls(), 1)
	assert.Equal(t, 1, f.repo.count())
}

func TestCheckout_ReplayReturnsStoredOutcome(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	req := Request{UserID: "user-1", IdempotencyKey: "k1", Profile: validProfile}

	first, err := f.service.Checkout(ctx, req)
	require.NoError(t, err)
	second, err := f.service.Checkout(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, f.provider.calls(), 1)
	assert.Equal(t, 1, f.profiles.count())
}

func TestCheckout_FreshKeyIsNewAttempt(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	first, err := f.service.Checkout(ctx, Request{UserID: "user-1", Profile: validProfile})
	require.NoError(t, err)
	second, err := f.service.Checkout(ctx, Request{UserID: "user-1", Profile: validProfile})
	require.NoError(t, err)

	assert.NotEqual(t, first.AttemptID, second.AttemptID)
	assert.NotEqual(t, first.IdempotencyKey, second.IdempotencyKey)
	assert.Len(t, f.provider.calls(), 2)
}

func TestCheckout_InFlightKeyIsRejected(t *testing.T) {
	f := newFixture(true)
	f.repo.put(domain.Attempt{ID: "a1", UserID: "user-1", IdempotencyKey: "k1", State: domain.SessionRequested{}})

	res, err := f.service.Checkout(context.Background(), Request{UserID: "user-1", IdempotencyKey: "k1", Profile: validProfile})

	assert.ErrorIs(t, err, domain.ErrAttemptInProgress)
	assert.Equal(t, "a1", res.AttemptID)
	assert.Empty(t, f.provider.calls())
}

func TestCheckout_ProviderErrorFailsAttempt(t *testing.T) {
	f := newFixture(true)
	f.provider.CreateErr = errors.New("connection reset")

	res, err := f.service.Checkout(context.Background(), Request{UserID: "user-1", Profile: validProfile})

	assert.ErrorIs(t, err, domain.ErrSessionCreationFailed)
	assert.Len(t, f.provider.calls(), 1)
	assert.Equal(t, domain.CheckoutStatusFailed, res.Status)
	assert.Empty(t, res.RedirectURL)
	assert.Contains(t, res.FailureReason, "connection reset")
}

func TestCheckout_MissingRedirectFailsAttempt(t *testing.T) {
	f := newFixture(true)
	f.provider.Session = domain.Session{ID: "cs_test_1"}

	res, err := f.service.Checkout(context.Background(), Request{UserID: "user-1", Profile: validProfile})

	assert.ErrorIs(t, err, domain.ErrSessionCreationFailed)
	assert.Equal(t, domain.CheckoutStatusFailed, res.Status)
	assert.Len(t, f.provider.calls(), 1)
}

func TestCheckout_PricesFromCatalogAtRequestTime(t *testing.T) {
	f := newFixture(true)
	repriced := tee
	repriced.Price = 3000
	f.catalog.Products = []domain.Product{repriced}

	res, err := f.service.Checkout(context.Background(), Request{UserID: "user-1", Profile: validProfile})
	require.NoError(t, err)

	calls := f.provider.calls()
	require.Len(t, calls, 1)
	assert.EqualValues(t, 3000, calls[0].Items[0].PriceInCents)
	assert.EqualValues(t, 6000, res.TotalAmount)
}

func TestCheckout_CatalogEmptiedDuringSave(t *testing.T) {
	f := newFixture(true)
	f.catalog.Products = nil

	res, err := f.service.Checkout(context.Background(), Request{UserID: "user-1", Profile: validProfile})

	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Equal(t, domain.CheckoutStatusFailed, res.Status)
	assert.Empty(t, f.provider.calls())
}

func TestResolveStatus_CardDeclined(t *testing.T) {
	f := newFixture(true)
	f.provider.Statuses["sess_123"] = domain.SessionFailed{Error: "card_declined"}

	status, resolved, err := f.service.ResolveStatus(context.Background(), "sess_123")
	require.NoError(t, err)
	require.True(t, resolved)

	failed, ok := status.(domain.SessionFailed)
	require.True(t, ok)
	assert.Equal(t, "card_declined", failed.Error)
	assert.Empty(t, f.repo.events)
}

func TestResolveStatus_Pending(t *testing.T) {
	f := newFixture(true)

	status, resolved, err := f.service.ResolveStatus(context.Background(), "cs_open")
	require.NoError(t, err)
	assert.False(t, resolved)
	assert.Nil(t, status)
}

func TestResolveStatus_PaidEmitsEventOnce(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	res, err := f.service.Checkout(ctx, Request{UserID: "user-1", Profile: validProfile})
	require.NoError(t, err)
	f.provider.Statuses[res.SessionID] = domain.SessionCompleted{
		CallerPrincipal: "user-1", HasCaller: true, ProviderResponse: `{"payment_status":"paid"}`,
	}

	for i := 0; i < 2; i++ {
		status, resolved, err := f.service.ResolveStatus(ctx, res.SessionID)
		require.NoError(t, err)
		require.True(t, resolved)
		assert.IsType(t, domain.SessionCompleted{}, status)
	}

	require.Len(t, f.repo.events, 1)
	event := f.repo.events[0]
	assert.Equal(t, domain.EventCheckoutPaid, event.EventType)
	assert.Equal(t, res.AttemptID, event.AggregateId)

	var paid domain.CheckoutPaid
	require.NoError(t, json.Unmarshal(event.Payload, &paid))
	assert.Equal(t, "user-1", paid.UserID)
	assert.Equal(t, res.SessionID, paid.SessionID)
	assert.EqualValues(t, 5000, paid.TotalAmount)
	assert.Equal(t, ResolutionPaid, f.repo.resolutions[res.AttemptID])
}

func TestResolveStatus_PaidAfterDecline(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	res, err := f.service.Checkout(ctx, Request{UserID: "user-1", Profile: validProfile})
	require.NoError(t, err)

	f.provider.Statuses[res.SessionID] = domain.SessionFailed{Error: "card_declined"}
	_, resolved, err := f.service.ResolveStatus(ctx, res.SessionID)
	require.NoError(t, err)
	require.True(t, resolved)
	assert.Equal(t, ResolutionFailed, f.repo.resolution(res.AttemptID))
	assert.Equal(t, 0, f.repo.eventCount())

	f.provider.Statuses[res.SessionID] = domain.SessionCompleted{ProviderResponse: `{"payment_status":"paid"}`}
	status, resolved, err := f.service.ResolveStatus(ctx, res.SessionID)
	require.NoError(t, err)
	require.True(t, resolved)
	assert.IsType(t, domain.SessionCompleted{}, status)

	assert.Equal(t, ResolutionPaid, f.repo.resolution(res.AttemptID))
	assert.Equal(t, 1, f.repo.eventCount())

	f.provider.Statuses[res.SessionID] = domain.SessionFailed{Error: "expired"}
	_, _, err = f.service.ResolveStatus(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, ResolutionPaid, f.repo.resolution(res.AttemptID))
	assert.Equal(t, 1, f.repo.eventCount())
}

func TestResolveStatus_PersistenceFailureIsReported(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	res, err := f.service.Checkout(ctx, Request{UserID: "user-1", Profile: validProfile})
	require.NoError(t, err)
	f.provider.Statuses[res.SessionID] = domain.SessionCompleted{ProviderResponse: `{"payment_status":"paid"}`}

	f.repo.ResolveErr = errors.New("tx aborted")
	status, resolved, err := f.service.ResolveStatus(ctx, res.SessionID)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.True(t, resolved)
	assert.IsType(t, domain.SessionCompleted{}, status)
	assert.Equal(t, 0, f.repo.eventCount())

	f.repo.ResolveErr = nil
	f.repo.SessionErr = errors.New("connection refused")
	_, _, err = f.service.ResolveStatus(ctx, res.SessionID)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.Equal(t, 0, f.repo.eventCount())

	f.repo.SessionErr = nil
	_, _, err = f.service.ResolveStatus(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.eventCount())
	assert.Equal(t, ResolutionPaid, f.repo.resolution(res.AttemptID))
}

func TestCheckout_CatalogFailureReleasesAttempt(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	req := Request{UserID: "user-1", IdempotencyKey: "k1", Profile: validProfile}

	f.catalog.Err = errors.New("database is locked")
	first, err := f.service.Checkout(ctx, req)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.Equal(t, domain.CheckoutStatusNotStarted, first.Status)
	assert.Empty(t, f.provider.calls())
	assert.Equal(t, domain.CheckoutStatusNotStarted, f.repo.attempt(first.AttemptID).State.Status())

	f.catalog.Err = nil
	second, err := f.service.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.AttemptID, second.AttemptID)
	assert.Equal(t, domain.CheckoutStatusCompleted, second.Status)
	assert.Len(t, f.provider.calls(), 1)
}

func TestCheckout_StateSaveFailureReleasesAttempt(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	req := Request{UserID: "user-1", IdempotencyKey: "k1", Profile: validProfile}

	f.repo.SaveErrFor = map[domain.CheckoutStatus]error{
		domain.CheckoutStatusSessionRequested: errors.New("connection reset"),
	}
	first, err := f.service.Checkout(ctx, req)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.Empty(t, f.provider.calls())
	assert.Equal(t, domain.CheckoutStatusNotStarted, f.repo.attempt(first.AttemptID).State.Status())

	f.repo.SaveErrFor = map[domain.CheckoutStatus]error{
		domain.CheckoutStatusProfileSaved: errors.New("connection reset"),
	}
	_, err = f.service.Checkout(ctx, req)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.Equal(t, domain.CheckoutStatusNotStarted, f.repo.attempt(first.AttemptID).State.Status())

	f.repo.SaveErrFor = nil
	second, err := f.service.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.AttemptID, second.AttemptID)
	assert.Equal(t, domain.CheckoutStatusCompleted, second.Status)
	assert.Len(t, f.provider.calls(), 1)
}

func TestCheckout_OverflowingTotalRequestsNoSession(t *testing.T) {
	f := newFixture(true)
	f.catalog.Products = []domain.Product{{ID: "P1", Name: "Classic Tee", Price: math.MaxInt64/2 + 1}}

	res, err := f.service.Checkout(context.Background(), Request{UserID: "user-1", IdempotencyKey: "k1", Profile: validProfile})

	assert.ErrorIs(t, err, domain.ErrAmountOverflow)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.CheckoutStatusNotStarted, res.Status)
	assert.Empty(t, f.provider.calls())
}
