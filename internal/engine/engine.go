package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bookline/internal/config"
	"bookline/internal/domain"
	"bookline/internal/events"
	"bookline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// SessionRequestOptions are parameters for creating a session request.
type SessionRequestOptions struct {
	ID                 string
	ClientID           string
	RegionID           string
	OfferID            string
	Date               string
	SetupIDs           []string
	MinOperators       int
	PreferredOperators int
	ActorID            string
}

// RequestSession creates a session in pending_confirmation, invisible to
// the marketplace until the owning enterprise confirms it.
func (e Engine) RequestSession(ctx context.Context, opts SessionRequestOptions) (domain.Session, error) {
	if opts.ClientID == "" {
		return domain.Session{}, validationErrorf("client_id is required")
	}
	if opts.Date == "" {
		return domain.Session{}, validationErrorf("date is required")
	}
	if len(opts.SetupIDs) == 0 {
		return domain.Session{}, validationErrorf("at least one setup_id is required")
	}
	if _, err := time.Parse(time.RFC3339, opts.Date); err != nil {
		return domain.Session{}, validationErrorf("date must be RFC3339: %v", err)
	}
	if opts.MinOperators < 0 || opts.PreferredOperators < 0 {
		return domain.Session{}, validationErrorf("operator counts must not be negative")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	if err := e.Repo.EnsureActor(ctx, tx, opts.ClientID, "client", now); err != nil {
		return domain.Session{}, PersistenceError{Op: "ensure client actor", Err: err}
	}

	var offerID *string
	if opts.OfferID != "" {
		if _, err := e.Repo.GetOfferTx(ctx, tx, opts.OfferID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Session{}, NotFoundError{Entity: "offer", ID: opts.OfferID}
			}
			return domain.Session{}, err
		}
		offerID = &opts.OfferID
	}

	s := domain.Session{
		ID:                 opts.ID,
		ClientID:           opts.ClientID,
		RegionID:           opts.RegionID,
		OfferID:            offerID,
		Date:               opts.Date,
		Status:             domain.SessionPendingConfirmation,
		MarketplaceVisible: false,
		SetupIDs:           opts.SetupIDs,
		MinOperators:       opts.MinOperators,
		PreferredOperators: opts.PreferredOperators,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.Repo.InsertSessionTx(ctx, tx, s); err != nil {
		return domain.Session{}, PersistenceError{Op: "insert session", Err: err}
	}
	if err := e.Events.Append(ctx, tx, "session.requested", "session", s.ID, opts.ActorID, events.EventPayload{
		"client_id": s.ClientID,
		"date":      s.Date,
		"status":    s.Status,
	}); err != nil {
		return domain.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// ConfirmSession moves a session from pending_confirmation to confirmed
// and publishes it on the marketplace. Confirmation and visibility change
// together; there is no confirmed-but-hidden intermediate state.
func (e Engine) ConfirmSession(ctx context.Context, sessionID, actorID string) (domain.Session, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSessionTx(ctx, tx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Session{}, NotFoundError{Entity: "session", ID: sessionID}
		}
		return domain.Session{}, err
	}
	if s.Status != domain.SessionPendingConfirmation {
		return domain.Session{}, StateError{Status: s.Status, Op: "confirmation"}
	}

	now := e.nowRFC3339()
	if err := e.Repo.UpdateSessionStatusTx(ctx, tx, s.ID, domain.SessionConfirmed, true, now); err != nil {
		return domain.Session{}, PersistenceError{Op: "confirm session", Err: err}
	}
	if err := e.Events.Append(ctx, tx, "session.confirmed", "session", s.ID, actorID, events.EventPayload{
		"previous_status": s.Status,
		"status":          domain.SessionConfirmed,
	}); err != nil {
		return domain.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, err
	}
	s.Status = domain.SessionConfirmed
	s.MarketplaceVisible = true
	s.UpdatedAt = now
	return s, nil
}

// CompletionResult reports the transition a CompleteMission call made and
// its effect on the credit ledger.
type CompletionResult struct {
	Session           domain.Session `json:"session"`
	PreviousStatus    string         `json:"previous_status"`
	NewStatus         string         `json:"new_status"`
	CreditsConsumed   int            `json:"credits_consumed"`
	CreditsRolledBack int            `json:"credits_rolled_back"`
}

// CompleteMission sets a session's status and settles the subscription
// ledger. The ledger moves only on the edge of the transition: entering
// terminee consumes one credit, leaving terminee gives one back. Repeating
// the same status is a no-op for the ledger, so double completion cannot
// double-count.
func (e Engine) CompleteMission(ctx context.Context, sessionID, newStatus, actorID string) (CompletionResult, error) {
	if !domain.KnownSessionStatus(newStatus) {
		return CompletionResult{}, StateError{Status: newStatus}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSessionTx(ctx, tx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CompletionResult{}, NotFoundError{Entity: "session", ID: sessionID}
		}
		return CompletionResult{}, err
	}
	previous := s.Status

	// Leaving confirmed also pulls the session off the marketplace.
	visible := s.MarketplaceVisible && newStatus == domain.SessionConfirmed
	now := e.nowRFC3339()
	if err := e.Repo.UpdateSessionStatusTx(ctx, tx, s.ID, newStatus, visible, now); err != nil {
		return CompletionResult{}, PersistenceError{Op: "update session status", Err: err}
	}

	res := CompletionResult{PreviousStatus: previous, NewStatus: newStatus}
	if s.OfferID != nil {
		offer, err := e.Repo.GetOfferTx(ctx, tx, *s.OfferID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return CompletionResult{}, NotFoundError{Entity: "offer", ID: *s.OfferID}
			}
			return CompletionResult{}, err
		}
		if offer.Type == domain.OfferAbonnement {
			switch {
			case previous != domain.SessionTerminee && newStatus == domain.SessionTerminee:
				if err := e.Repo.ConsumeCreditTx(ctx, tx, offer.ID); err != nil {
					return CompletionResult{}, PersistenceError{Op: "consume credit", Err: err}
				}
				res.CreditsConsumed = 1
			case previous == domain.SessionTerminee && newStatus != domain.SessionTerminee:
				if err := e.Repo.RollbackCreditTx(ctx, tx, offer.ID); err != nil {
					return CompletionResult{}, PersistenceError{Op: "rollback credit", Err: err}
				}
				res.CreditsRolledBack = 1
			}
		}
	}

	if err := e.Events.Append(ctx, tx, "mission.completed", "session", s.ID, actorID, events.EventPayload{
		"previous_status":     previous,
		"status":              newStatus,
		"credits_consumed":    res.CreditsConsumed,
		"credits_rolled_back": res.CreditsRolledBack,
	}); err != nil {
		return CompletionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CompletionResult{}, err
	}
	s.Status = newStatus
	s.MarketplaceVisible = visible
	s.UpdatedAt = now
	res.Session = s
	return res, nil
}

// DeletionResult reports the ledger effect of removing a session.
type DeletionResult struct {
	SessionID         string `json:"session_id"`
	CreditsRolledBack int    `json:"credits_rolled_back"`
}

// DeleteMission removes a session. When the session was already completed
// against a subscription offer the consumed credit is returned first, so
// no orphaned consumption survives the delete. Both writes share one
// transaction.
func (e Engine) DeleteMission(ctx context.Context, sessionID, actorID string) (DeletionResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return DeletionResult{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSessionTx(ctx, tx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return DeletionResult{}, NotFoundError{Entity: "session", ID: sessionID}
		}
		return DeletionResult{}, err
	}

	res := DeletionResult{SessionID: s.ID}
	if s.Status == domain.SessionTerminee && s.OfferID != nil {
		offer, err := e.Repo.GetOfferTx(ctx, tx, *s.OfferID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return DeletionResult{}, NotFoundError{Entity: "offer", ID: *s.OfferID}
			}
			return DeletionResult{}, err
		}
		if offer.Type == domain.OfferAbonnement {
			if err := e.Repo.RollbackCreditTx(ctx, tx, offer.ID); err != nil {
				return DeletionResult{}, PersistenceError{Op: "rollback credit", Err: err}
			}
			res.CreditsRolledBack = 1
		}
	}
	if err := e.Repo.DeleteSessionTx(ctx, tx, s.ID); err != nil {
		return DeletionResult{}, PersistenceError{Op: "delete session", Err: err}
	}
	if err := e.Events.Append(ctx, tx, "session.deleted", "session", s.ID, actorID, events.EventPayload{
		"status":              s.Status,
		"credits_rolled_back": res.CreditsRolledBack,
	}); err != nil {
		return DeletionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return DeletionResult{}, err
	}
	return res, nil
}

// GetSession returns a session by ID.
func (e Engine) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Session{}, NotFoundError{Entity: "session", ID: sessionID}
	}
	return s, err
}

// ListSessions returns sessions newest first, optionally filtered.
func (e Engine) ListSessions(ctx context.Context, f repo.SessionFilters) ([]domain.Session, error) {
	if f.Status != "" && !domain.KnownSessionStatus(f.Status) {
		return nil, StateError{Status: f.Status}
	}
	f.Limit = e.clampLimit(f.Limit)
	return e.Repo.ListSessions(ctx, f)
}

// MarketplaceSessions returns the operator-facing listing of confirmed,
// visible sessions.
func (e Engine) MarketplaceSessions(ctx context.Context, f repo.MarketplaceFilters) ([]domain.Session, error) {
	if f.DateFrom != "" {
		if _, err := time.Parse(time.RFC3339, f.DateFrom); err != nil {
			return nil, validationErrorf("date_from must be RFC3339: %v", err)
		}
	}
	f.Limit = e.clampLimit(f.Limit)
	return e.Repo.ListMarketplaceSessions(ctx, f)
}

func (e Engine) clampLimit(limit int) int {
	pageSize, maxPageSize := 50, 200
	if e.Config != nil {
		pageSize = e.Config.Marketplace.PageSize
		maxPageSize = e.Config.Marketplace.MaxPageSize
	}
	if limit <= 0 {
		return pageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// ApplyToSession creates a pending staffing application for an operator
// on a marketplace-visible session.
func (e Engine) ApplyToSession(ctx context.Context, sessionID, operatorID, actorID string) (domain.OperatorApplication, error) {
	if operatorID == "" {
		return domain.OperatorApplication{}, validationErrorf("operator_id is required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OperatorApplication{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSessionTx(ctx, tx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.OperatorApplication{}, NotFoundError{Entity: "session", ID: sessionID}
		}
		return domain.OperatorApplication{}, err
	}
	if s.Status != domain.SessionConfirmed || !s.MarketplaceVisible {
		return domain.OperatorApplication{}, NotAvailableError{SessionID: sessionID}
	}
	if _, err := e.Repo.GetApplicationTx(ctx, tx, sessionID, operatorID); err == nil {
		return domain.OperatorApplication{}, AlreadyAppliedError{SessionID: sessionID, OperatorID: operatorID}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.OperatorApplication{}, err
	}

	now := e.nowRFC3339()
	if err := e.Repo.EnsureActor(ctx, tx, operatorID, "operator", now); err != nil {
		return domain.OperatorApplication{}, PersistenceError{Op: "ensure operator actor", Err: err}
	}
	a := domain.OperatorApplication{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		OperatorID: operatorID,
		Status:     domain.ApplicationPending,
		AppliedAt:  now,
	}
	if err := e.Repo.InsertApplicationTx(ctx, tx, a); err != nil {
		return domain.OperatorApplication{}, PersistenceError{Op: "insert application", Err: err}
	}
	if err := e.Events.Append(ctx, tx, "application.submitted", "application", a.ID, actorID, events.EventPayload{
		"session_id":  a.SessionID,
		"operator_id": a.OperatorID,
	}); err != nil {
		return domain.OperatorApplication{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OperatorApplication{}, err
	}
	return a, nil
}

// DecideApplication accepts or rejects a pending application. The decision
// is final; a decided application cannot be re-decided. Other applications
// on the same session are untouched, and no cap is placed on how many
// operators a session accepts.
func (e Engine) DecideApplication(ctx context.Context, sessionID, operatorID, decision, actorID string) (domain.OperatorApplication, error) {
	if decision != domain.ApplicationAccepted && decision != domain.ApplicationRejected {
		return domain.OperatorApplication{}, validationErrorf("decision must be %q or %q", domain.ApplicationAccepted, domain.ApplicationRejected)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OperatorApplication{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetApplicationTx(ctx, tx, sessionID, operatorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.OperatorApplication{}, NotFoundError{Entity: "application", ID: fmt.Sprintf("%s/%s", sessionID, operatorID)}
		}
		return domain.OperatorApplication{}, err
	}
	if a.Status != domain.ApplicationPending {
		return domain.OperatorApplication{}, StateError{Status: a.Status, Op: "a decision"}
	}

	decidedAt := e.nowRFC3339()
	if err := e.Repo.UpdateApplicationDecisionTx(ctx, tx, a.ID, decision, decidedAt); err != nil {
		return domain.OperatorApplication{}, PersistenceError{Op: "decide application", Err: err}
	}
	evtType := "application.accepted"
	if decision == domain.ApplicationRejected {
		evtType = "application.rejected"
	}
	if err := e.Events.Append(ctx, tx, evtType, "application", a.ID, actorID, events.EventPayload{
		"session_id":  a.SessionID,
		"operator_id": a.OperatorID,
		"status":      decision,
	}); err != nil {
		return domain.OperatorApplication{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OperatorApplication{}, err
	}
	a.Status = decision
	if decision == domain.ApplicationAccepted {
		a.AcceptedAt = &decidedAt
	} else {
		a.RejectedAt = &decidedAt
	}
	return a, nil
}

// ListApplications returns a session's applications oldest first.
func (e Engine) ListApplications(ctx context.Context, sessionID string) ([]domain.OperatorApplication, error) {
	if _, err := e.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return e.Repo.ListApplicationsBySession(ctx, sessionID)
}

// OfferCreateOptions are parameters for creating a commercial offer.
type OfferCreateOptions struct {
	ID         string
	ClientID   string
	Type       string
	NbSessions int
	ActorID    string
}

// CreateOffer records a purchased offer with an empty consumption counter.
func (e Engine) CreateOffer(ctx context.Context, opts OfferCreateOptions) (domain.Offer, error) {
	if opts.ClientID == "" {
		return domain.Offer{}, validationErrorf("client_id is required")
	}
	switch opts.Type {
	case domain.OfferAbonnement, domain.OfferSingleSession, domain.OfferPackage:
	default:
		return domain.Offer{}, validationErrorf("unknown offer type %q", opts.Type)
	}
	if opts.NbSessions <= 0 {
		return domain.Offer{}, validationErrorf("nb_sessions must be positive")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Offer{}, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	if err := e.Repo.EnsureActor(ctx, tx, opts.ClientID, "client", now); err != nil {
		return domain.Offer{}, PersistenceError{Op: "ensure client actor", Err: err}
	}
	o := domain.Offer{
		ID:         opts.ID,
		ClientID:   opts.ClientID,
		Type:       opts.Type,
		NbSessions: opts.NbSessions,
		CreatedAt:  now,
	}
	if err := e.Repo.InsertOfferTx(ctx, tx, o); err != nil {
		return domain.Offer{}, PersistenceError{Op: "insert offer", Err: err}
	}
	if err := e.Events.Append(ctx, tx, "offer.created", "offer", o.ID, opts.ActorID, events.EventPayload{
		"client_id":   o.ClientID,
		"type":        o.Type,
		"nb_sessions": o.NbSessions,
	}); err != nil {
		return domain.Offer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Offer{}, err
	}
	return o, nil
}

// GetOffer returns an offer by ID.
func (e Engine) GetOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	o, err := e.Repo.GetOffer(ctx, offerID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Offer{}, NotFoundError{Entity: "offer", ID: offerID}
	}
	return o, err
}

// ListOffers returns offers, optionally filtered by client.
func (e Engine) ListOffers(ctx context.Context, clientID string) ([]domain.Offer, error) {
	return e.Repo.ListOffers(ctx, clientID)
}
