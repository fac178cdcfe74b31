// Package checkout runs checkout attempts: it saves the caller's shipping
// profile, requests exactly one payment session per attempt and reconciles the
// session outcome reported by the provider.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/money"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ResolutionPaid   = "paid"
	ResolutionFailed = "failed"
)

var errMissingRedirect = errors.New("provider returned no redirect url")

// supersedes reports whether next may overwrite an already recorded resolution.
func supersedes(recorded, next string) bool {
	return recorded == "" || (recorded == ResolutionFailed && next == ResolutionPaid)
}

type SummaryReader interface {
	Summary(ctx context.Context, userID string) (domain.OrderSummary, error)
}

type CatalogReader interface {
	Snapshot(ctx context.Context) (domain.Catalog, error)
}

type ProfileSaver interface {
	Save(ctx context.Context, userID string, p domain.ShippingProfile) (domain.ShippingProfile, error)
}

type Provider interface {
	CreateSession(ctx context.Context, req domain.SessionRequest) (domain.Session, error)
	GetSessionStatus(ctx context.Context, sessionID string) (domain.SessionStatus, bool, error)
}

type PaymentConfig interface {
	IsPaymentConfigured(ctx context.Context) (bool, error)
}

type Settings struct {
	PublicBaseURL string
	Currency      string
}

func (s Settings) successURL() string {
	return strings.TrimRight(s.PublicBaseURL, "/") + "/payment-success?session_id={CHECKOUT_SESSION_ID}"
}

func (s Settings) cancelURL() string {
	return strings.TrimRight(s.PublicBaseURL, "/") + "/payment-failure"
}

type Request struct {
	UserID         string
	IdempotencyKey string
	Profile        domain.ShippingProfile
}

type Result struct {
	AttemptID      string                `json:"attempt_id"`
	IdempotencyKey string                `json:"idempotency_key"`
	Status         domain.CheckoutStatus `json:"status"`
	TotalAmount    money.Cents           `json:"total_amount"`
	SessionID      string                `json:"session_id,omitempty"`
	RedirectURL    string                `json:"redirect_url,omitempty"`
	FailureReason  string                `json:"failure_reason,omitempty"`
}

type Service struct {
	repo     Repository
	summary  SummaryReader
	catalog  CatalogReader
	profiles ProfileSaver
	provider Provider
	payments PaymentConfig
	settings Settings
	log      *zap.Logger
	now      func() time.Time
}

func NewService(
	repo Repository,
	summary SummaryReader,
	catalog CatalogReader,
	profiles ProfileSaver,
	provider Provider,
	payments PaymentConfig,
	settings Settings,
	log *zap.Logger,
) *Service {
	if settings.Currency == "" {
		settings.Currency = "usd"
	}
	return &Service{
		repo:     repo,
		summary:  summary,
		catalog:  catalog,
		profiles: profiles,
		provider: provider,
		payments: payments,
		settings: settings,
		log:      log,
		now:      time.Now,
	}
}

// Checkout runs one attempt for req. Resubmitting an idempotency key returns
// the stored outcome of that attempt; only an attempt that stopped before a
// session was requested, and so returned to NotStarted, is run again.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	if req.UserID == "" {
		return Result{}, domain.ErrUnauthenticated
	}

	configured, err := s.payments.IsPaymentConfigured(ctx)
	if err != nil {
		return Result{}, err
	}
	if !configured {
		return Result{}, domain.ErrPaymentNotConfigured
	}

	var (
		attempt domain.Attempt
		resumed bool
	)
	if req.IdempotencyKey != "" {
		existing, found, err := s.repo.GetAttemptByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
		}
		if found {
			status := existing.State.Status()
			s.log.Info("duplicate checkout request",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("attempt_id", existing.ID),
				zap.String("status", status.String()))
			switch {
			case status.IsTerminal():
				return resultOf(existing), nil
			case status != domain.CheckoutStatusNotStarted:
				return resultOf(existing), domain.ErrAttemptInProgress
			}
			attempt, resumed = existing, true
		}
	}

	summary, err := s.summary.Summary(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	if summary.IsEmpty() {
		return Result{}, domain.ErrEmptyCart
	}

	if resumed {
		attempt.TotalAmount = summary.TotalAmount
	} else {
		key := req.IdempotencyKey
		if key == "" {
			key = uuid.NewString()
		}
		attempt = domain.Attempt{
			ID:             uuid.NewString(),
			UserID:         req.UserID,
			IdempotencyKey: key,
			State:          domain.NotStarted{},
			TotalAmount:    summary.TotalAmount,
			Currency:       s.settings.Currency,
		}
		if err := s.repo.CreateAttempt(ctx, &attempt); err != nil {
			if errors.Is(err, domain.ErrAttemptInProgress) {
				return Result{}, err
			}
			return Result{}, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
		}
	}

	return s.run(ctx, &attempt, summary, req.Profile)
}

func (s *Service) run(ctx context.Context, a *domain.Attempt, summary domain.OrderSummary, profile domain.ShippingProfile) (Result, error) {
	log := s.log.With(zap.String("attempt_id", a.ID), zap.String("user_id", a.UserID))

	if err := s.transition(ctx, a, domain.ProfileSaving{}); err != nil {
		return resultOf(*a), err
	}

	if _, err := s.profiles.Save(ctx, a.UserID, profile); err != nil {
		log.Warn("profile save failed, no session requested", zap.Error(err))
		if terr := s.transition(context.WithoutCancel(ctx), a, domain.NotStarted{LastError: err.Error()}); terr != nil {
			log.Error("failed to reset attempt after profile save", zap.Error(terr))
		}
		return resultOf(*a), fmt.Errorf("%w: %w", domain.ErrProfileSaveFailed, err)
	}

	if err := s.transition(ctx, a, domain.ProfileSaved{}); err != nil {
		s.release(ctx, log, a, err)
		return resultOf(*a), err
	}

	items, err := s.lineItems(ctx, summary)
	if err != nil {
		log.Warn("pricing failed, no session requested", zap.Error(err))
		s.release(ctx, log, a, err)
		return resultOf(*a), err
	}
	if len(items) == 0 {
		log.Warn("no purchasable items left after profile save")
		if terr := s.transition(ctx, a, domain.Failed{Reason: domain.ErrEmptyCart.Error()}); terr != nil {
			return resultOf(*a), terr
		}
		return resultOf(*a), domain.ErrEmptyCart
	}
	total, err := itemsTotal(items)
	if err != nil {
		s.release(ctx, log, a, err)
		return resultOf(*a), err
	}
	a.TotalAmount = total

	if err := s.transition(ctx, a, domain.SessionRequested{}); err != nil {
		s.release(ctx, log, a, err)
		return resultOf(*a), err
	}

	// A created session must be recorded even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	session, err := s.provider.CreateSession(ctx, domain.SessionRequest{
		Items:          items,
		SuccessURL:     s.settings.successURL(),
		CancelURL:      s.settings.cancelURL(),
		IdempotencyKey: a.ID,
		ClientRef:      a.UserID,
	})
	if err == nil && session.URL == "" {
		err = errMissingRedirect
	}
	if err != nil {
		log.Error("payment session creation failed", zap.Error(err))
		if terr := s.transition(ctx, a, domain.Failed{Reason: err.Error()}); terr != nil {
			log.Error("failed to record failed attempt", zap.Error(terr))
		}
		return resultOf(*a), fmt.Errorf("%w: %w", domain.ErrSessionCreationFailed, err)
	}

	if err := s.transition(ctx, a, domain.Completed{SessionID: session.ID, RedirectURL: session.URL}); err != nil {
		log.Error("payment session created but not recorded", zap.String("session_id", session.ID), zap.Error(err))
		return resultOf(*a), err
	}

	log.Info("payment session created", zap.String("session_id", session.ID))
	return resultOf(*a), nil
}

// release returns an attempt that stopped before any session was requested to
// NotStarted, so the same idempotency key can run it again. An attempt owned by
// a concurrent request is left alone.
func (s *Service) release(ctx context.Context, log *zap.Logger, a *domain.Attempt, cause error) {
	if errors.Is(cause, domain.ErrAttemptInProgress) {
		return
	}
	if err := s.transition(context.WithoutCancel(ctx), a, domain.NotStarted{LastError: cause.Error()}); err != nil {
		log.Error("failed to release attempt", zap.String("status", a.State.Status().String()), zap.Error(err))
	}
}

// lineItems prices the summary against the catalog as it is now.
func (s *Service) lineItems(ctx context.Context, summary domain.OrderSummary) ([]domain.LineItem, error) {
	catalog, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	items := make([]domain.LineItem, 0, len(summary.Items))
	for _, item := range summary.Items {
		p, ok := catalog.Lookup(item.ProductID)
		if !ok {
			s.log.Warn("product left the catalog during checkout", zap.String("product_id", item.ProductID))
			continue
		}
		items = append(items, domain.LineItem{
			ProductName:        p.Name,
			ProductDescription: fmt.Sprintf("%s - Size: %s", p.Name, item.Size),
			PriceInCents:       p.Price,
			Quantity:           item.Quantity,
			Currency:           s.settings.Currency,
		})
	}
	return items, nil
}

func itemsTotal(items []domain.LineItem) (money.Cents, error) {
	subtotals := make([]money.Cents, 0, len(items))
	for _, item := range items {
		subtotal, err := item.PriceInCents.Times(item.Quantity)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", domain.ErrAmountOverflow, err)
		}
		subtotals = append(subtotals, subtotal)
	}
	total, err := money.Sum(subtotals...)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrAmountOverflow, err)
	}
	return total, nil
}

func (s *Service) transition(ctx context.Context, a *domain.Attempt, next domain.CheckoutState) error {
	prev := a.State
	from := prev.Status()
	if err := a.Advance(next); err != nil {
		return err
	}
	if err := s.repo.SaveState(ctx, a, from); err != nil {
		a.State = prev
		if errors.Is(err, ErrStaleAttempt) {
			return fmt.Errorf("%w: %w", domain.ErrAttemptInProgress, err)
		}
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	s.log.Debug("checkout attempt advanced",
		zap.String("attempt_id", a.ID),
		zap.String("from", from.String()),
		zap.String("to", next.Status().String()))
	return nil
}

// ResolveStatus asks the provider for the outcome of sessionID. The bool is
// false while the session is still open. Outcomes of sessions that belong to a
// recorded attempt are stored; paid replaces failed but nothing replaces paid,
// and a paid session emits one checkout_paid event. Session ids without an attempt are answered all the same. When the
// outcome cannot be stored the status is still returned, together with an
// error wrapping domain.ErrBackendUnavailable, so the caller can poll again.
func (s *Service) ResolveStatus(ctx context.Context, sessionID string) (domain.SessionStatus, bool, error) {
	status, resolved, err := s.provider.GetSessionStatus(ctx, sessionID)
	if err != nil || !resolved {
		return status, resolved, err
	}

	attempt, found, err := s.repo.GetAttemptBySessionID(ctx, sessionID)
	if err != nil {
		s.log.Error("failed to look up attempt for session", zap.String("session_id", sessionID), zap.Error(err))
		return status, true, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	if !found {
		s.log.Info("session has no recorded attempt", zap.String("session_id", sessionID))
		return status, true, nil
	}

	var (
		resolution, detail string
		event              *domain.OutboxEvent
	)
	switch st := status.(type) {
	case domain.SessionCompleted:
		if caller, ok := st.Caller(); ok && caller != attempt.UserID {
			s.log.Warn("session caller does not match attempt owner",
				zap.String("session_id", sessionID),
				zap.String("attempt_id", attempt.ID))
		}
		resolution, detail = ResolutionPaid, st.ProviderResponse
		event, err = s.paidEvent(attempt, sessionID)
		if err != nil {
			s.log.Error("failed to build checkout_paid event", zap.String("attempt_id", attempt.ID), zap.Error(err))
			return status, true, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
		}
	case domain.SessionFailed:
		resolution, detail = ResolutionFailed, st.Error
	}

	if !supersedes(attempt.Resolution, resolution) {
		return status, true, nil
	}

	recorded, err := s.repo.RecordResolution(ctx, attempt.ID, resolution, detail, event)
	if err != nil {
		s.log.Error("failed to record session resolution", zap.String("attempt_id", attempt.ID), zap.Error(err))
		return status, true, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	if recorded {
		s.log.Info("checkout attempt resolved",
			zap.String("attempt_id", attempt.ID),
			zap.String("session_id", sessionID),
			zap.String("resolution", resolution))
	}
	return status, true, nil
}

func (s *Service) paidEvent(a domain.Attempt, sessionID string) (*domain.OutboxEvent, error) {
	payload, err := json.Marshal(domain.CheckoutPaid{
		AttemptID:   a.ID,
		UserID:      a.UserID,
		SessionID:   sessionID,
		TotalAmount: a.TotalAmount,
		Currency:    a.Currency,
		PaidAt:      s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &domain.OutboxEvent{
		AggregateId: a.ID,
		EventType:   domain.EventCheckoutPaid,
		Payload:     payload,
	}, nil
}

func resultOf(a domain.Attempt) Result {
	r := Result{
		AttemptID:      a.ID,
		IdempotencyKey: a.IdempotencyKey,
		TotalAmount:    a.TotalAmount,
	}
	if a.State == nil {
		return r
	}
	r.Status = a.State.Status()
	switch st := a.State.(type) {
	case domain.Completed:
		r.SessionID, r.RedirectURL = st.SessionID, st.RedirectURL
	case domain.Failed:
		r.FailureReason = st.Reason
	case domain.NotStarted:
		r.FailureReason = st.LastError
	}
	return r
}
