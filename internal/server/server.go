package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"bookline/internal/domain"
	"bookline/internal/engine"
	"bookline/internal/guard"
	"bookline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

// apiError models the failure envelope: success:false, a stable error
// code and a human-readable details string.
type apiError struct {
	status  int
	Success bool   `json:"success"`
	Code    string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Details }

func newAPIError(status int, code, details string) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Success: false, Code: code, Details: details}
}

// New returns an HTTP handler exposing the Bookline API. The webhook
// dispatcher, if configured, runs until ctx is cancelled.
func New(ctx context.Context, cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are invalid input.
			status = http.StatusBadRequest
		}
		code := ""
		if status == http.StatusBadRequest {
			code = "INVALID_DATA"
		}
		return newAPIError(status, code, msg)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Bookline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerSessions(group, cfg.Engine)
	registerMarketplace(group, cfg.Engine)
	registerStaffing(group, cfg.Engine)
	registerOffers(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(ctx, cfg.Engine)

	return router, nil
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_DATA"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "UNAUTHORIZED"
	case http.StatusNotFound:
		return "SESSION_NOT_FOUND"
	case http.StatusConflict:
		return "INVALID_STATUS"
	default:
		return "INTERNAL_ERROR"
	}
}

func notFoundCode(entity string) string {
	switch entity {
	case "session":
		return "SESSION_NOT_FOUND"
	case "application":
		return "APPLICATION_NOT_FOUND"
	case "offer":
		return "OFFER_NOT_FOUND"
	default:
		return strings.ToUpper(entity) + "_NOT_FOUND"
	}
}

// handleError maps typed workflow errors onto the failure envelope. No
// workflow error crosses this boundary unmapped.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var forbidden guard.ForbiddenError
	if errors.As(err, &forbidden) {
		return newAPIError(http.StatusForbidden, "UNAUTHORIZED", err.Error())
	}
	var invalid engine.ValidationError
	if errors.As(err, &invalid) {
		return newAPIError(http.StatusBadRequest, "INVALID_DATA", err.Error())
	}
	var state engine.StateError
	if errors.As(err, &state) {
		return newAPIError(http.StatusConflict, "INVALID_STATUS", err.Error())
	}
	var notFound engine.NotFoundError
	if errors.As(err, &notFound) {
		return newAPIError(http.StatusNotFound, notFoundCode(notFound.Entity), err.Error())
	}
	var unavailable engine.NotAvailableError
	if errors.As(err, &unavailable) {
		return newAPIError(http.StatusConflict, "SESSION_NOT_AVAILABLE", err.Error())
	}
	var applied engine.AlreadyAppliedError
	if errors.As(err, &applied) {
		return newAPIError(http.StatusConflict, "ALREADY_APPLIED", err.Error())
	}
	var persist engine.PersistenceError
	if errors.As(err, &persist) {
		code := "INTERNAL_ERROR"
		switch {
		case strings.Contains(persist.Op, "delete session"):
			code = "SESSION_DELETE_FAILED"
		case strings.Contains(persist.Op, "session"):
			code = "SESSION_UPDATE_FAILED"
		}
		return newAPIError(http.StatusInternalServerError, code, err.Error())
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
	}
	return newAPIError(http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
}

// requireAction resolves the caller and checks the permission table
// before any data access.
func requireAction(ctx context.Context, action guard.Action) (Principal, huma.StatusError) {
	principal, ok := principalFromContext(ctx)
	if !ok || principal.ActorID == "" {
		return Principal{}, newAPIError(http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	}
	if err := guard.Check(principal.Role, action); err != nil {
		return Principal{}, handleError(err)
	}
	return principal, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Bookline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSessions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "request-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Request a session",
		Description:   "Creates a session in pending_confirmation, hidden from the marketplace.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateSessionRequest `json:"body"`
	}) (*struct {
		Body SessionEnvelope `json:"body"`
	}, error) {
		principal, authErr := requireAction(ctx, guard.ActionSessionRequest)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.SessionRequestOptions{
			ClientID: input.Body.ClientID,
			Date:     input.Body.Date,
			SetupIDs: input.Body.SetupIDs,
			ActorID:  principal.ActorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.RegionID != nil {
			opts.RegionID = *input.Body.RegionID
		}
		if input.Body.OfferID != nil {
			opts.OfferID = *input.Body.OfferID
		}
		if input.Body.MinOperators != nil {
			opts.MinOperators = *input.Body.MinOperators
		}
		if input.Body.PreferredOperators != nil {
			opts.PreferredOperators = *input.Body.PreferredOperators
		}
		s, err := e.RequestSession(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionEnvelope `json:"body"`
		}{Body: SessionEnvelope{Success: true, Session: s}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/confirm",
		Summary:     "Confirm a session",
		Description: "Moves a pending session to confirmed and publishes it on the marketplace.",
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body SessionEnvelope `json:"body"`
	}, error) {
		principal, authErr := requireAction(ctx, guard.ActionSessionConfirm)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.ConfirmSession(ctx, input.SessionID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionEnvelope `json:"body"`
		}{Body: SessionEnvelope{Success: true, Session: s}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/complete",
		Summary:     "Set a session's status and settle credits",
	}, func(ctx context.Context, input *struct {
		SessionID string                 `path:"session_id"`
		Body      CompleteSessionRequest `json:"body"`
	}) (*struct {
		Body CompletionEnvelope `json:"body"`
	}, error) {
		principal, authErr := requireAction(ctx, guard.ActionSessionComplete)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CompleteMission(ctx, input.SessionID, input.Body.Status, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompletionEnvelope `json:"body"`
		}{Body: completionEnvelope(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-session",
		Method:      http.MethodDelete,
		Path:        "/sessions/{session_id}",
		Summary:     "Delete a session, returning any consumed credit",
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body DeletionEnvelope `json:"body"`
	}, error) {
		principal, authErr := requireAction(ctx, guard.ActionSessionDelete)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.DeleteMission(ctx, input.SessionID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeletionEnvelope `json:"body"`
		}{Body: DeletionEnvelope{Success: true, SessionID: res.SessionID, CreditsRolledBack: res.CreditsRolledBack}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}",
		Summary:     "Get a session",
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body SessionEnvelope `json:"body"`
	}, error) {
		if _, authErr := requireAction(ctx, guard.ActionSessionRead); authErr != nil {
			return nil, authErr
		}
		s, err := e.GetSession(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionEnvelope `json:"body"`
		}{Body: SessionEnvelope{Success: true, Session: s}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List sessions newest first",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
		Status   string `query:"status"`
		Limit    int    `query:"limit"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body SessionListEnvelope `json:"body"`
	}, error) {
		if _, authErr := requireAction(ctx, guard.ActionSessionList); authErr != nil {
			return nil, authErr
		}
		f := repo.SessionFilters{
			ClientID: input.ClientID,
			Status:   input.Status,
			Limit:    input.Limit,
		}
		if input.Cursor != "" {
			createdAt, id, err := decodeCursor(input.Cursor)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "INVALID_DATA", "invalid cursor")
			}
			f.CursorCreatedAt, f.CursorID = createdAt, id
		}
		sessions, err := e.ListSessions(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		out := SessionListEnvelope{Success: true, Sessions: sessions}
		if len(sessions) > 0 {
			last := sessions[len(sessions)-1]
			out.Cursor = encodeCursor(last.CreatedAt, last.ID)
		}
		return &struct {
			Body SessionListEnvelope `json:"body"`
		}{Body: out}, nil
	})
}

func registerMarketplace(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "marketplace-sessions",
		Method:      http.MethodGet,
		Path:        "/marketplace/sessions",
		Summary:     "List confirmed, visible sessions",
	}, func(ctx context.Context, input *struct {
		From   string `query:"from"`
		Region string `query:"region"`
		Limit  int    `query:"limit"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body SessionListEnvelope `json:"body"`
	}, error) {
		if _, authErr := requireAction(ctx, guard.ActionMarketplaceList); authErr != nil {
			return nil, authErr
		}
		f := repo.MarketplaceFilters{
			DateFrom: input.From,
			RegionID: input.Region,
			Limit:    input.Limit,
		}
		if input.Cursor != "" {
			date, id, err := decodeCursor(input.Cursor)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "INVALID_DATA", "invalid cursor")
			}
			f.CursorDate, f.CursorID = date, id
		}
		sessions, err := e.MarketplaceSessions(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		out := SessionListEnvelope{Success: true, Sessions: sessions}
		if len(sessions) > 0 {
			last := sessions[len(sessions)-1]
			out.Cursor = encodeCursor(last.Date, last.ID)
		}
		return &struct {
			Body SessionListEnvelope `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "apply-to-session",
		Method:        http.MethodPost,
		Path:          "/marketplace/sessions/{session_id}/applications",
		Summary:       "Apply to staff a session",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		SessionID string       `path:"session_id"`
		Body      ApplyRequest `json:"body"`
	}) (*struct {
		Body ApplicationEnvelope `json:"body"`
	}, error) {
		principal, authErr := requireAction(ctx, guard.ActionApplicationApply)
		if authErr != nil {
			return nil, authErr
		}
		operatorID := input.Body.OperatorID
		if operatorID == "" {
			operatorID = principal.ActorID
		}
		a, err := e.ApplyToSession(ctx, input.SessionID, operatorID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationEnvelope `json:"body"`
		}{Body: ApplicationEnvelope{Success: true, Application: a}}, nil
	})
}

func registerStaffing(api huma.API, e engine.Engine) {
	decide := func(decision string, action guard.Action) func(ctx context.Context, input *struct {
		SessionID  string `path:"session_id"`
		OperatorID string `path:"operator_id"`
	}) (*struct {
		Body ApplicationEnvelope `json:"body"`
	}, error) {
		return func(ctx context.Context, input *struct {
			SessionID  string `path:"session_id"`
			OperatorID string `path:"operator_id"`
		}) (*struct {
			Body ApplicationEnvelope `json:"body"`
		}, error) {
			principal, authErr := requireAction(ctx, action)
			if authErr != nil {
				return nil, authErr
			}
			a, err := e.DecideApplication(ctx, input.SessionID, input.OperatorID, decision, principal.ActorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body ApplicationEnvelope `json:"body"`
			}{Body: ApplicationEnvelope{Success: true, Application: a}}, nil
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "accept-operator",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/applications/{operator_id}/accept",
		Summary:     "Accept a pending application",
	}, decide(domain.ApplicationAccepted, guard.ActionApplicationAccept))

	huma.Register(api, huma.Operation{
		OperationID: "reject-operator",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/applications/{operator_id}/reject",
		Summary:     "Reject a pending application",
	}, decide(domain.ApplicationRejected, guard.ActionApplicationReject))

	huma.Register(api, huma.Operation{
		OperationID: "list-applications",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}/applications",
		Summary:     "List a session's applications",
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body ApplicationListEnvelope `json:"body"`
	}, error) {
		if _, authErr := requireAction(ctx, guard.ActionApplicationList); authErr != nil {
			return nil, authErr
		}
		apps, err := e.ListApplications(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationListEnvelope `json:"body"`
		}{Body: ApplicationListEnvelope{Success: true, Applications: apps}}, nil
	})
}

func registerOffers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-offer",
		Method:        http.MethodPost,
		Path:          "/offers",
		Summary:       "Create a commercial offer",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateOfferRequest `json:"body"`
	}) (*struct {
		Body OfferEnvelope `json:"body"`
	}, error) {
		principal, authErr := requireAction(ctx, guard.ActionOfferCreate)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.OfferCreateOptions{
			ClientID:   input.Body.ClientID,
			Type:       input.Body.Type,
			NbSessions: input.Body.NbSessions,
			ActorID:    principal.ActorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		o, err := e.CreateOffer(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OfferEnvelope `json:"body"`
		}{Body: OfferEnvelope{Success: true, Offer: o}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-offer",
		Method:      http.MethodGet,
		Path:        "/offers/{offer_id}",
		Summary:     "Get an offer",
	}, func(ctx context.Context, input *struct {
		OfferID string `path:"offer_id"`
	}) (*struct {
		Body OfferEnvelope `json:"body"`
	}, error) {
		if _, authErr := requireAction(ctx, guard.ActionOfferRead); authErr != nil {
			return nil, authErr
		}
		o, err := e.GetOffer(ctx, input.OfferID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OfferEnvelope `json:"body"`
		}{Body: OfferEnvelope{Success: true, Offer: o}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-offers",
		Method:      http.MethodGet,
		Path:        "/offers",
		Summary:     "List offers",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
	}) (*struct {
		Body OfferListEnvelope `json:"body"`
	}, error) {
		if _, authErr := requireAction(ctx, guard.ActionOfferList); authErr != nil {
			return nil, authErr
		}
		offers, err := e.ListOffers(ctx, input.ClientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OfferListEnvelope `json:"body"`
		}{Body: OfferListEnvelope{Success: true, Offers: offers}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body EventListEnvelope `json:"body"`
	}, error) {
		if _, authErr := requireAction(ctx, guard.ActionActorManage); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		evts, err := e.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventListEnvelope `json:"body"`
		}{Body: EventListEnvelope{Success: true, Events: evts}}, nil
	})
}

// Cursors are "created_at|id" (or "date|id") pairs, opaque to clients.
func encodeCursor(ts, id string) string {
	return ts + "|" + id
}

func decodeCursor(cursor string) (string, string, error) {
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed cursor")
	}
	if _, err := time.Parse(time.RFC3339, parts[0]); err != nil {
		return "", "", fmt.Errorf("malformed cursor timestamp")
	}
	return parts[0], parts[1], nil
}
