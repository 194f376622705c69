package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bookline/internal/config"
	"bookline/internal/db"
	"bookline/internal/engine"
	"bookline/internal/migrate"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	handler, err := New(ctx, Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testJWTSecret, AllowLegacyRoleHeaders: true},
	})
	if err != nil {
		cancel()
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			cancel()
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asRole(actorID, role string) map[string]string {
	return map[string]string{"X-Actor-Id": actorID, "X-Actor-Role": role}
}

func TestBookingRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions", map[string]any{
		"client_id": "c1",
		"date":      "2025-05-01T10:00:00Z",
		"setup_ids": []string{"s1"},
	}, asRole("c1", "client"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("request session: %d %s", res.StatusCode, string(data))
	}
	var created SessionEnvelope
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !created.Success || created.Session.Status != "pending_confirmation" || created.Session.MarketplaceVisible {
		t.Fatalf("unexpected created session: %s", string(data))
	}
	sessionID := created.Session.ID

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions/"+sessionID+"/confirm", nil, asRole("e1", "enterprise"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("confirm: %d %s", res.StatusCode, string(data))
	}
	var confirmed SessionEnvelope
	_ = json.Unmarshal(data, &confirmed)
	if confirmed.Session.Status != "confirmed" || !confirmed.Session.MarketplaceVisible {
		t.Fatalf("confirm did not publish: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/marketplace/sessions", nil, asRole("op-1", "operator"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("marketplace: %d %s", res.StatusCode, string(data))
	}
	var listed SessionListEnvelope
	_ = json.Unmarshal(data, &listed)
	if len(listed.Sessions) != 1 || listed.Sessions[0].ID != sessionID {
		t.Fatalf("expected session listed: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/marketplace/sessions/"+sessionID+"/applications",
		map[string]any{"operator_id": "op-1"}, asRole("op-1", "operator"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("apply: %d %s", res.StatusCode, string(data))
	}
	var applied ApplicationEnvelope
	_ = json.Unmarshal(data, &applied)
	if applied.Application.Status != "pending" {
		t.Fatalf("expected pending application: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions/"+sessionID+"/applications/op-1/accept", nil, asRole("e1", "enterprise"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}
	var decided ApplicationEnvelope
	_ = json.Unmarshal(data, &decided)
	if decided.Application.Status != "accepted" {
		t.Fatalf("expected accepted application: %s", string(data))
	}
}

func TestRoleGuardRejectsForbiddenAction(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions", map[string]any{
		"client_id": "c1",
		"date":      "2025-05-01T10:00:00Z",
		"setup_ids": []string{"s1"},
	}, asRole("op-1", "operator"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Success || envelope.Error != "UNAUTHORIZED" {
		t.Fatalf("unexpected envelope: %s", string(data))
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/sessions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

func TestJWTAuth(t *testing.T) {
	srv := newTestServer(t)
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "c1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "client",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/sessions", nil,
		map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("jwt list: %d %s", res.StatusCode, string(data))
	}

	badToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign bad token: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/sessions", nil,
		map[string]string{"Authorization": "Bearer " + badToken})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d %s", res.StatusCode, string(data))
	}
}

func TestApplyToMissingSession(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/marketplace/sessions/ghost/applications",
		map[string]any{"operator_id": "op-1"}, asRole("op-1", "operator"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error != "SESSION_NOT_FOUND" {
		t.Fatalf("unexpected code: %s", string(data))
	}
}
