package booklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Bookline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Session represents the API session model.
type Session struct {
	ID                 string   `json:"id"`
	ClientID           string   `json:"client_id"`
	RegionID           string   `json:"region_id,omitempty"`
	OfferID            *string  `json:"offer_id,omitempty"`
	Date               string   `json:"date"`
	Status             string   `json:"status"`
	MarketplaceVisible bool     `json:"marketplace_visible"`
	SetupIDs           []string `json:"setup_ids"`
}

// Application represents a staffing application.
type Application struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	OperatorID string `json:"operator_id"`
	Status     string `json:"status"`
	AppliedAt  string `json:"applied_at"`
}

// Offer represents a commercial offer.
type Offer struct {
	ID               string `json:"id"`
	ClientID         string `json:"client_id"`
	Type             string `json:"type"`
	NbSessions       int    `json:"nb_sessions"`
	SessionsConsumed int    `json:"sessions_consumed"`
}

// CompletionResult reports a status change and its ledger effect.
type CompletionResult struct {
	Session           Session `json:"session"`
	PreviousStatus    string  `json:"previous_status"`
	NewStatus         string  `json:"new_status"`
	CreditsConsumed   int     `json:"credits_consumed"`
	CreditsRolledBack int     `json:"credits_rolled_back"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Details    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s details=%s", e.StatusCode, e.Code, e.Details)
}

// RequestSession creates a session request.
func (c *Client) RequestSession(ctx context.Context, clientID, date string, setupIDs []string) (Session, error) {
	body := map[string]any{
		"client_id": clientID,
		"date":      date,
		"setup_ids": setupIDs,
	}
	var resp struct {
		Session Session `json:"session"`
	}
	err := c.do(ctx, http.MethodPost, "v1/sessions", body, &resp)
	return resp.Session, err
}

// ConfirmSession confirms a pending session.
func (c *Client) ConfirmSession(ctx context.Context, sessionID string) (Session, error) {
	var resp struct {
		Session Session `json:"session"`
	}
	endpoint := fmt.Sprintf("v1/sessions/%s/confirm", url.PathEscape(sessionID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.Session, err
}

// CompleteSession sets a session's status and settles credits.
func (c *Client) CompleteSession(ctx context.Context, sessionID, status string) (CompletionResult, error) {
	var resp CompletionResult
	endpoint := fmt.Sprintf("v1/sessions/%s/complete", url.PathEscape(sessionID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// DeleteSession removes a session, returning any consumed credit.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	endpoint := fmt.Sprintf("v1/sessions/%s", url.PathEscape(sessionID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// MarketplaceSessions lists confirmed, visible sessions.
func (c *Client) MarketplaceSessions(ctx context.Context, from, region string, limit int) ([]Session, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if region != "" {
		q.Set("region", region)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "v1/marketplace/sessions"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Sessions, err
}

// Apply submits a staffing application.
func (c *Client) Apply(ctx context.Context, sessionID, operatorID string) (Application, error) {
	var resp struct {
		Application Application `json:"application"`
	}
	endpoint := fmt.Sprintf("v1/marketplace/sessions/%s/applications", url.PathEscape(sessionID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"operator_id": operatorID}, &resp)
	return resp.Application, err
}

// Decide accepts or rejects a pending application.
func (c *Client) Decide(ctx context.Context, sessionID, operatorID, decision string) (Application, error) {
	var resp struct {
		Application Application `json:"application"`
	}
	endpoint := fmt.Sprintf("v1/sessions/%s/applications/%s/%s",
		url.PathEscape(sessionID), url.PathEscape(operatorID), url.PathEscape(decision))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.Application, err
}

// GetOffer fetches an offer.
func (c *Client) GetOffer(ctx context.Context, offerID string) (Offer, error) {
	var resp struct {
		Offer Offer `json:"offer"`
	}
	endpoint := fmt.Sprintf("v1/offers/%s", url.PathEscape(offerID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Offer, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Details: string(b)}
		var envelope struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(b, &envelope) == nil && envelope.Error != "" {
			apiErr.Code = envelope.Error
			apiErr.Details = envelope.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
