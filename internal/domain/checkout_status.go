package domain

import "fmt"

type CheckoutStatus string

const (
	CheckoutStatusNotStarted       CheckoutStatus = "NOT_STARTED"
	CheckoutStatusProfileSaving    CheckoutStatus = "PROFILE_SAVING"
	CheckoutStatusProfileSaved     CheckoutStatus = "PROFILE_SAVED"
	CheckoutStatusSessionRequested CheckoutStatus = "SESSION_REQUESTED"
	CheckoutStatusCompleted        CheckoutStatus = "COMPLETED"
	CheckoutStatusFailed           CheckoutStatus = "FAILED"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusFailed
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether an attempt in status from may move to status to.
func CanTransitionTo(from, to CheckoutStatus) bool {
	switch from {
	case CheckoutStatusNotStarted:
		return to == CheckoutStatusProfileSaving
	case CheckoutStatusProfileSaving:
		return to == CheckoutStatusProfileSaved || to == CheckoutStatusNotStarted
	case CheckoutStatusProfileSaved:
		// Failed covers a catalog that emptied while the profile was saving.
		// NotStarted releases an attempt that could not be priced.
		return to == CheckoutStatusSessionRequested || to == CheckoutStatusFailed || to == CheckoutStatusNotStarted
	case CheckoutStatusSessionRequested:
		return to == CheckoutStatusCompleted || to == CheckoutStatusFailed
	case CheckoutStatusCompleted, CheckoutStatusFailed:
		return false
	default:
		return false
	}
}

// CheckoutState is one step of a checkout attempt. Only the variants declared
// in this file implement it.
type CheckoutState interface {
	Status() CheckoutStatus
	isCheckoutState()
}

// NotStarted carries the reason of the last failed profile save, if any.
type NotStarted struct {
	LastError string
}

type ProfileSaving struct{}

type ProfileSaved struct{}

type SessionRequested struct{}

// Completed means the provider created a session and the redirect target was handed back.
type Completed struct {
	SessionID   string
	RedirectURL string
}

type Failed struct {
	Reason string
}

func (NotStarted) Status() CheckoutStatus       { return CheckoutStatusNotStarted }
func (ProfileSaving) Status() CheckoutStatus    { return CheckoutStatusProfileSaving }
func (ProfileSaved) Status() CheckoutStatus     { return CheckoutStatusProfileSaved }
func (SessionRequested) Status() CheckoutStatus { return CheckoutStatusSessionRequested }
func (Completed) Status() CheckoutStatus        { return CheckoutStatusCompleted }
func (Failed) Status() CheckoutStatus           { return CheckoutStatusFailed }

func (NotStarted) isCheckoutState()       {}
func (ProfileSaving) isCheckoutState()    {}
func (ProfileSaved) isCheckoutState()     {}
func (SessionRequested) isCheckoutState() {}
func (Completed) isCheckoutState()        {}
func (Failed) isCheckoutState()           {}

// StateFromRecord rebuilds the state variant from its persisted columns.
func StateFromRecord(status CheckoutStatus, sessionID, redirectURL, reason string) (CheckoutState, error) {
	switch status {
	case CheckoutStatusNotStarted:
		return NotStarted{LastError: reason}, nil
	case CheckoutStatusProfileSaving:
		return ProfileSaving{}, nil
	case CheckoutStatusProfileSaved:
		return ProfileSaved{}, nil
	case CheckoutStatusSessionRequested:
		return SessionRequested{}, nil
	case CheckoutStatusCompleted:
		return Completed{SessionID: sessionID, RedirectURL: redirectURL}, nil
	case CheckoutStatusFailed:
		return Failed{Reason: reason}, nil
	default:
		return nil, fmt.Errorf("unknown checkout status %q", status)
	}
}
