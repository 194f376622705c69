package domain

// Session statuses.
const (
	SessionPendingConfirmation = "pending_confirmation"
	SessionConfirmed           = "confirmed"
	SessionTerminee            = "terminee"
	SessionCancelled           = "cancelled"
)

// Offer types. Only abonnement offers take part in credit accounting.
const (
	OfferAbonnement    = "abonnement"
	OfferSingleSession = "single_session"
	OfferPackage       = "package"
)

// Application statuses.
const (
	ApplicationPending  = "pending"
	ApplicationAccepted = "accepted"
	ApplicationRejected = "rejected"
)

// KnownSessionStatus reports whether s is one of the session statuses.
func KnownSessionStatus(s string) bool {
	switch s {
	case SessionPendingConfirmation, SessionConfirmed, SessionTerminee, SessionCancelled:
		return true
	}
	return false
}

type Session struct {
	ID                 string   `json:"id"`
	ClientID           string   `json:"client_id"`
	RegionID           string   `json:"region_id,omitempty"`
	OfferID            *string  `json:"offer_id,omitempty"`
	Date               string   `json:"date" format:"date-time"`
	Status             string   `json:"status" enum:"pending_confirmation,confirmed,terminee,cancelled"`
	MarketplaceVisible bool     `json:"marketplace_visible"`
	SetupIDs           []string `json:"setup_ids"`
	MinOperators       int      `json:"min_operators"`
	PreferredOperators int      `json:"preferred_operators"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
	UpdatedAt          string   `json:"updated_at" format:"date-time"`
}

// OperatorApplication joins an operator to a session. At most one row
// exists per (session, operator) pair; rows are never deleted.
type OperatorApplication struct {
	ID         string  `json:"id"`
	SessionID  string  `json:"session_id"`
	OperatorID string  `json:"operator_id"`
	Status     string  `json:"status" enum:"pending,accepted,rejected"`
	AppliedAt  string  `json:"applied_at" format:"date-time"`
	AcceptedAt *string `json:"accepted_at,omitempty" format:"date-time"`
	RejectedAt *string `json:"rejected_at,omitempty" format:"date-time"`
}

// Offer is a commercial product purchased by a client. SessionsConsumed
// stays within [0, NbSessions] at all times.
type Offer struct {
	ID               string `json:"id"`
	ClientID         string `json:"client_id"`
	Type             string `json:"type" enum:"abonnement,single_session,package"`
	NbSessions       int    `json:"nb_sessions"`
	SessionsConsumed int    `json:"sessions_consumed"`
	CreatedAt        string `json:"created_at" format:"date-time"`
}

type Actor struct {
	ID        string `json:"id"`
	Role      string `json:"role" enum:"client,enterprise,operator,admin"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
