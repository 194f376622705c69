package server

import (
	"bookline/internal/domain"
	"bookline/internal/engine"
)

// Request payloads

type CreateSessionRequest struct {
	ID                 *string  `json:"id,omitempty"`
	ClientID           string   `json:"client_id"`
	RegionID           *string  `json:"region_id,omitempty"`
	OfferID            *string  `json:"offer_id,omitempty"`
	Date               string   `json:"date" format:"date-time"`
	SetupIDs           []string `json:"setup_ids"`
	MinOperators       *int     `json:"min_operators,omitempty"`
	PreferredOperators *int     `json:"preferred_operators,omitempty"`
}

type CompleteSessionRequest struct {
	Status string `json:"status" enum:"pending_confirmation,confirmed,terminee,cancelled"`
}

type ApplyRequest struct {
	OperatorID string `json:"operator_id"`
}

type CreateOfferRequest struct {
	ID         *string `json:"id,omitempty"`
	ClientID   string  `json:"client_id"`
	Type       string  `json:"type" enum:"abonnement,single_session,package"`
	NbSessions int     `json:"nb_sessions"`
}

// Response payloads. Every body carries the success flag; failures use
// the error envelope instead.

type SessionEnvelope struct {
	Success bool           `json:"success"`
	Session domain.Session `json:"session"`
}

type SessionListEnvelope struct {
	Success  bool             `json:"success"`
	Sessions []domain.Session `json:"sessions"`
	Cursor   string           `json:"cursor,omitempty"`
}

type CompletionEnvelope struct {
	Success           bool           `json:"success"`
	Session           domain.Session `json:"session"`
	PreviousStatus    string         `json:"previous_status"`
	NewStatus         string         `json:"new_status"`
	CreditsConsumed   int            `json:"credits_consumed"`
	CreditsRolledBack int            `json:"credits_rolled_back"`
}

type DeletionEnvelope struct {
	Success           bool   `json:"success"`
	SessionID         string `json:"session_id"`
	CreditsRolledBack int    `json:"credits_rolled_back"`
}

type ApplicationEnvelope struct {
	Success     bool                       `json:"success"`
	Application domain.OperatorApplication `json:"application"`
}

type ApplicationListEnvelope struct {
	Success      bool                         `json:"success"`
	Applications []domain.OperatorApplication `json:"applications"`
}

type OfferEnvelope struct {
	Success bool         `json:"success"`
	Offer   domain.Offer `json:"offer"`
}

type OfferListEnvelope struct {
	Success bool           `json:"success"`
	Offers  []domain.Offer `json:"offers"`
}

type EventListEnvelope struct {
	Success bool           `json:"success"`
	Events  []domain.Event `json:"events"`
}

func completionEnvelope(res engine.CompletionResult) CompletionEnvelope {
	return CompletionEnvelope{
		Success:           true,
		Session:           res.Session,
		PreviousStatus:    res.PreviousStatus,
		NewStatus:         res.NewStatus,
		CreditsConsumed:   res.CreditsConsumed,
		CreditsRolledBack: res.CreditsRolledBack,
	}
}
