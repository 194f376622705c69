package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bookline/internal/config"
	"bookline/internal/db"
	"bookline/internal/domain"
	"bookline/internal/engine"
	"bookline/internal/migrate"
	"bookline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func seedOffer(t *testing.T, env testEnv, offerType string, capacity, consumed int) domain.Offer {
	t.Helper()
	o, err := env.Engine.CreateOffer(env.Ctx, engine.OfferCreateOptions{
		ClientID:   "c1",
		Type:       offerType,
		NbSessions: capacity,
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if consumed > 0 {
		if _, err := env.Engine.DB.ExecContext(env.Ctx,
			`UPDATE offers SET sessions_consumed=? WHERE id=?`, consumed, o.ID); err != nil {
			t.Fatalf("seed consumed: %v", err)
		}
		o.SessionsConsumed = consumed
	}
	return o
}

func newConfirmedSession(t *testing.T, env testEnv, offerID string) domain.Session {
	t.Helper()
	s, err := env.Engine.RequestSession(env.Ctx, engine.SessionRequestOptions{
		ClientID: "c1",
		OfferID:  offerID,
		Date:     "2025-06-01T10:00:00Z",
		SetupIDs: []string{"s1"},
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("request session: %v", err)
	}
	s, err = env.Engine.ConfirmSession(env.Ctx, s.ID, "tester")
	if err != nil {
		t.Fatalf("confirm session: %v", err)
	}
	return s
}

func offerConsumed(t *testing.T, env testEnv, id string) int {
	t.Helper()
	o, err := env.Engine.GetOffer(env.Ctx, id)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	return o.SessionsConsumed
}

func TestCompleteConsumesSubscriptionCredit(t *testing.T) {
	env := newTestEnv(t)
	offer := seedOffer(t, env, domain.OfferAbonnement, 10, 3)
	s := newConfirmedSession(t, env, offer.ID)

	res, err := env.Engine.CompleteMission(env.Ctx, s.ID, domain.SessionTerminee, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.CreditsConsumed != 1 || res.CreditsRolledBack != 0 {
		t.Fatalf("expected one credit consumed, got %+v", res)
	}
	if res.PreviousStatus != domain.SessionConfirmed || res.NewStatus != domain.SessionTerminee {
		t.Fatalf("unexpected transition %s -> %s", res.PreviousStatus, res.NewStatus)
	}
	if got := offerConsumed(t, env, offer.ID); got != 4 {
		t.Fatalf("expected consumed=4, got %d", got)
	}
}

func TestCompleteClampedAtCapacity(t *testing.T) {
	env := newTestEnv(t)
	offer := seedOffer(t, env, domain.OfferAbonnement, 10, 10)
	s := newConfirmedSession(t, env, offer.ID)

	res, err := env.Engine.CompleteMission(env.Ctx, s.ID, domain.SessionTerminee, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	// The edge matched, so the call reports a consumption even though the
	// counter was already at capacity.
	if res.CreditsConsumed != 1 {
		t.Fatalf("expected reported consumption, got %+v", res)
	}
	if got := offerConsumed(t, env, offer.ID); got != 10 {
		t.Fatalf("expected consumed clamped at 10, got %d", got)
	}
}

func TestDoubleCompleteIncrementsOnce(t *testing.T) {
	env := newTestEnv(t)
	offer := seedOffer(t, env, domain.OfferAbonnement, 10, 0)
	s := newConfirmedSession(t, env, offer.ID)

	if _, err := env.Engine.CompleteMission(env.Ctx, s.ID, domain.SessionTerminee, "tester"); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	res, err := env.Engine.CompleteMission(env.Ctx, s.ID, domain.SessionTerminee, "tester")
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if res.CreditsConsumed != 0 {
		t.Fatalf("terminee->terminee must not consume, got %+v", res)
	}
	if got := offerConsumed(t, env, offer.ID); got != 1 {
		t.Fatalf("expected consumed=1 after double complete, got %d", got)
	}
}

func TestRollbackSymmetry(t *testing.T) {
	env := newTestEnv(t)
	offer := seedOffer(t, env, domain.OfferAbonnement, 10, 3)
	s := newConfirmedSession(t, env, offer.ID)

	if _, err := env.Engine.CompleteMission(env.Ctx, s.ID, domain.SessionTerminee, "tester"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	res, err := env.Engine.CompleteMission(env.Ctx, s.ID, domain.SessionCancelled, "tester")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.CreditsRolledBack != 1 || res.CreditsConsumed != 0 {
		t.Fatalf("expected one rollback, got %+v", res)
	}
	if got := offerConsumed(t, env, offer.ID); got != 3 {
		t.Fatalf("expected consumed back to 3, got %d", got)
	}
}

func TestLedgerStaysWithinBounds(t *testing.T) {
	env := newTestEnv(t)
	offer := seedOffer(t, env, domain.OfferAbonnement, 2, 0)
	s := newConfirmedSession(t, env, offer.ID)

	transitions := []string{
		domain.SessionTerminee,
		domain.SessionConfirmed,
		domain.SessionCancelled,
		domain.SessionTerminee,
		domain.SessionTerminee,
		domain.SessionConfirmed,
		domain.SessionConfirmed,
	}
	for i, status := range transitions {
		if _, err := env.Engine.CompleteMission(env.Ctx, s.ID, status, "tester"); err != nil {
			t.Fatalf("transition %d to %s: %v", i, status, err)
		}
		got := offerConsumed(t, env, offer.ID)
		if got < 0 || got > 2 {
			t.Fatalf("ledger out of bounds after transition %d: %d", i, got)
		}
	}
	if _, err := env.Engine.DeleteMission(env.Ctx, s.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := offerConsumed(t, env, offer.ID); got < 0 || got > 2 {
		t.Fatalf("ledger out of bounds after delete: %d", got)
	}
}

func TestDeleteCompletedSessionRollsBack(t *testing.T) {
	env := newTestEnv(t)
	offer := seedOffer(t, env, domain.OfferAbonnement, 10, 3)
	s := newConfirmedSession(t, env, offer.ID)
	if _, err := env.Engine.CompleteMission(env.Ctx, s.ID, domain.SessionTerminee, "tester"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	res, err := env.Engine.DeleteMission(env.Ctx, s.ID, "tester")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.CreditsRolledBack != 1 {
		t.Fatalf("expected rollback on delete, got %+v", res)
	}
	if got := offerConsumed(t, env, offer.ID); got != 3 {
		t.Fatalf("expected consumed back to 3, got %d", got)
	}
	var nf engine.NotFoundError
	if _, err := env.Engine.GetSession(env.Ctx, s.ID); !errors.As(err, &nf) {
		t.Fatalf("expected session gone, got %v", err)
	}
}

func TestDeletePendingSessionLeavesLedgerAlone(t *testing.T) {
	env := newTestEnv(t)
	offer := seedOffer(t, env, domain.OfferAbonnement, 10, 3)
	s, err := env.Engine.RequestSession(env.Ctx, engine.SessionRequestOptions{
		ClientID: "c1",
		OfferID:  offer.ID,
		Date:     "2025-06-01T10:00:00Z",
		SetupIDs: []string{"s1"},
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res, err := env.Engine.DeleteMission(env.Ctx, s.ID, "tester")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.CreditsRolledBack != 0 {
		t.Fatalf("pending session must not roll back, got %+v", res)
	}
	if got := offerConsumed(t, env, offer.ID); got != 3 {
		t.Fatalf("expected consumed unchanged, got %d", got)
	}
}

func TestNonSubscriptionOfferIgnoresLedger(t *testing.T) {
	env := newTestEnv(t)
	offer := seedOffer(t, env, domain.OfferPackage, 5, 0)
	s := newConfirmedSession(t, env, offer.ID)

	res, err := env.Engine.CompleteMission(env.Ctx, s.ID, domain.SessionTerminee, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.CreditsConsumed != 0 {
		t.Fatalf("package offer must not consume, got %+v", res)
	}
	if got := offerConsumed(t, env, offer.ID); got != 0 {
		t.Fatalf("expected consumed=0, got %d", got)
	}
}

func TestRequestConfirmMarketplaceFlow(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.RequestSession(env.Ctx, engine.SessionRequestOptions{
		ClientID: "c1",
		Date:     "2025-05-01T10:00:00Z",
		SetupIDs: []string{"s1"},
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if s.Status != domain.SessionPendingConfirmation || s.MarketplaceVisible {
		t.Fatalf("new request must be pending and hidden, got %+v", s)
	}

	// Hidden from the marketplace until confirmed.
	listed, err := env.Engine.MarketplaceSessions(env.Ctx, repo.MarketplaceFilters{})
	if err != nil {
		t.Fatalf("marketplace: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("pending session leaked to marketplace")
	}

	s, err = env.Engine.ConfirmSession(env.Ctx, s.ID, "tester")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if s.Status != domain.SessionConfirmed || !s.MarketplaceVisible {
		t.Fatalf("confirm must publish, got %+v", s)
	}

	listed, err = env.Engine.MarketplaceSessions(env.Ctx, repo.MarketplaceFilters{})
	if err != nil {
		t.Fatalf("marketplace: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != s.ID {
		t.Fatalf("expected confirmed session listed, got %d items", len(listed))
	}
	for _, item := range listed {
		if item.Status != domain.SessionConfirmed || !item.MarketplaceVisible {
			t.Fatalf("marketplace leaked %+v", item)
		}
	}
}

func TestCompletionRemovesFromMarketplace(t *testing.T) {
	env := newTestEnv(t)
	s := newConfirmedSession(t, env, "")
	if _, err := env.Engine.CompleteMission(env.Ctx, s.ID, domain.SessionTerminee, "tester"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	listed, err := env.Engine.MarketplaceSessions(env.Ctx, repo.MarketplaceFilters{})
	if err != nil {
		t.Fatalf("marketplace: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("completed session still listed")
	}
}

func TestConfirmRequiresPendingStatus(t *testing.T) {
	env := newTestEnv(t)
	s := newConfirmedSession(t, env, "")
	var se engine.StateError
	_, err := env.Engine.ConfirmSession(env.Ctx, s.ID, "tester")
	if !errors.As(err, &se) {
		t.Fatalf("expected state error on double confirm, got %v", err)
	}
	// The status itself is known; the message must say the transition is
	// the problem, not the value.
	if !strings.Contains(err.Error(), "does not allow confirmation") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestCompleteUnknownStatusRejected(t *testing.T) {
	env := newTestEnv(t)
	s := newConfirmedSession(t, env, "")
	var se engine.StateError
	_, err := env.Engine.CompleteMission(env.Ctx, s.ID, "archived", "tester")
	if !errors.As(err, &se) {
		t.Fatalf("expected state error for unknown status, got %v", err)
	}
	if !strings.Contains(err.Error(), `unknown status "archived"`) {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestCompleteMissingSession(t *testing.T) {
	env := newTestEnv(t)
	var nf engine.NotFoundError
	if _, err := env.Engine.CompleteMission(env.Ctx, "nope", domain.SessionTerminee, "tester"); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
	if nf.Entity != "session" {
		t.Fatalf("expected session entity, got %s", nf.Entity)
	}
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []engine.SessionRequestOptions{
		{Date: "2025-05-01T10:00:00Z", SetupIDs: []string{"s1"}},
		{ClientID: "c1", SetupIDs: []string{"s1"}},
		{ClientID: "c1", Date: "2025-05-01T10:00:00Z"},
		{ClientID: "c1", Date: "not-a-date", SetupIDs: []string{"s1"}},
	}
	for i, opts := range cases {
		opts.ActorID = "tester"
		var ve engine.ValidationError
		if _, err := env.Engine.RequestSession(env.Ctx, opts); !errors.As(err, &ve) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestApplyToUnconfirmedSession(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.RequestSession(env.Ctx, engine.SessionRequestOptions{
		ClientID: "c1",
		Date:     "2025-05-01T10:00:00Z",
		SetupIDs: []string{"s1"},
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var na engine.NotAvailableError
	if _, err := env.Engine.ApplyToSession(env.Ctx, s.ID, "op-1", "op-1"); !errors.As(err, &na) {
		t.Fatalf("expected not available, got %v", err)
	}
}

func TestDuplicateApplicationRejected(t *testing.T) {
	env := newTestEnv(t)
	s := newConfirmedSession(t, env, "")
	if _, err := env.Engine.ApplyToSession(env.Ctx, s.ID, "op-1", "op-1"); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	var dup engine.AlreadyAppliedError
	if _, err := env.Engine.ApplyToSession(env.Ctx, s.ID, "op-1", "op-1"); !errors.As(err, &dup) {
		t.Fatalf("expected already applied, got %v", err)
	}
	apps, err := env.Engine.ListApplications(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("expected exactly one application row, got %d", len(apps))
	}
}

func TestDecideApplicationsIndependently(t *testing.T) {
	env := newTestEnv(t)
	s := newConfirmedSession(t, env, "")
	for _, op := range []string{"op-a", "op-b"} {
		if _, err := env.Engine.ApplyToSession(env.Ctx, s.ID, op, op); err != nil {
			t.Fatalf("apply %s: %v", op, err)
		}
	}

	accepted, err := env.Engine.DecideApplication(env.Ctx, s.ID, "op-a", domain.ApplicationAccepted, "tester")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.ApplicationAccepted || accepted.AcceptedAt == nil {
		t.Fatalf("expected accepted with timestamp, got %+v", accepted)
	}

	rejected, err := env.Engine.DecideApplication(env.Ctx, s.ID, "op-b", domain.ApplicationRejected, "tester")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.ApplicationRejected || rejected.RejectedAt == nil {
		t.Fatalf("expected rejected with timestamp, got %+v", rejected)
	}

	// Decisions are terminal; a second decision must not mutate the row.
	var se engine.StateError
	_, err = env.Engine.DecideApplication(env.Ctx, s.ID, "op-a", domain.ApplicationAccepted, "tester")
	if !errors.As(err, &se) {
		t.Fatalf("expected state error on re-accept, got %v", err)
	}
	if !strings.Contains(err.Error(), "does not allow a decision") {
		t.Fatalf("unexpected message: %v", err)
	}
	apps, err := env.Engine.ListApplications(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, a := range apps {
		switch a.OperatorID {
		case "op-a":
			if a.Status != domain.ApplicationAccepted {
				t.Fatalf("op-a mutated: %+v", a)
			}
		case "op-b":
			if a.Status != domain.ApplicationRejected {
				t.Fatalf("op-b mutated: %+v", a)
			}
		}
	}
}

func TestDecideMissingApplication(t *testing.T) {
	env := newTestEnv(t)
	s := newConfirmedSession(t, env, "")
	var nf engine.NotFoundError
	if _, err := env.Engine.DecideApplication(env.Ctx, s.ID, "ghost", domain.ApplicationAccepted, "tester"); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
	if nf.Entity != "application" {
		t.Fatalf("expected application entity, got %s", nf.Entity)
	}
}

func TestMarketplaceFilters(t *testing.T) {
	env := newTestEnv(t)
	mkSession := func(date, region string) domain.Session {
		s, err := env.Engine.RequestSession(env.Ctx, engine.SessionRequestOptions{
			ClientID: "c1",
			RegionID: region,
			Date:     date,
			SetupIDs: []string{"s1"},
			ActorID:  "tester",
		})
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if _, err := env.Engine.ConfirmSession(env.Ctx, s.ID, "tester"); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		return s
	}
	early := mkSession("2025-05-01T10:00:00Z", "idf")
	late := mkSession("2025-07-01T10:00:00Z", "paca")

	listed, err := env.Engine.MarketplaceSessions(env.Ctx, repo.MarketplaceFilters{DateFrom: "2025-06-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("marketplace: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != late.ID {
		t.Fatalf("date filter failed: %+v", listed)
	}

	listed, err = env.Engine.MarketplaceSessions(env.Ctx, repo.MarketplaceFilters{RegionID: "idf"})
	if err != nil {
		t.Fatalf("marketplace: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != early.ID {
		t.Fatalf("region filter failed: %+v", listed)
	}

	// Date ascending ordering.
	listed, err = env.Engine.MarketplaceSessions(env.Ctx, repo.MarketplaceFilters{})
	if err != nil {
		t.Fatalf("marketplace: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != early.ID || listed[1].ID != late.ID {
		t.Fatalf("expected date ascending, got %+v", listed)
	}
}

func TestMarketplaceCursorPagination(t *testing.T) {
	env := newTestEnv(t)
	dates := []string{"2025-05-01T10:00:00Z", "2025-05-02T10:00:00Z", "2025-05-03T10:00:00Z"}
	for _, d := range dates {
		s, err := env.Engine.RequestSession(env.Ctx, engine.SessionRequestOptions{
			ClientID: "c1",
			Date:     d,
			SetupIDs: []string{"s1"},
			ActorID:  "tester",
		})
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if _, err := env.Engine.ConfirmSession(env.Ctx, s.ID, "tester"); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}

	page1, err := env.Engine.MarketplaceSessions(env.Ctx, repo.MarketplaceFilters{Limit: 2})
	if err != nil {
		t.Fatalf("page1: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page1))
	}
	last := page1[len(page1)-1]
	page2, err := env.Engine.MarketplaceSessions(env.Ctx, repo.MarketplaceFilters{
		Limit:      2,
		CursorDate: last.Date,
		CursorID:   last.ID,
	})
	if err != nil {
		t.Fatalf("page2: %v", err)
	}
	if len(page2) != 1 {
		t.Fatalf("expected 1 remaining item, got %d", len(page2))
	}
	if page2[0].ID == page1[0].ID || page2[0].ID == page1[1].ID {
		t.Fatalf("cursor returned duplicate item")
	}
}

func TestOfferValidation(t *testing.T) {
	env := newTestEnv(t)
	var ve engine.ValidationError
	if _, err := env.Engine.CreateOffer(env.Ctx, engine.OfferCreateOptions{Type: domain.OfferAbonnement, NbSessions: 5}); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for missing client, got %v", err)
	}
	if _, err := env.Engine.CreateOffer(env.Ctx, engine.OfferCreateOptions{ClientID: "c1", Type: "premium", NbSessions: 5}); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
	if _, err := env.Engine.CreateOffer(env.Ctx, engine.OfferCreateOptions{ClientID: "c1", Type: domain.OfferAbonnement}); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for zero capacity, got %v", err)
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	s := newConfirmedSession(t, env, "")
	if _, err := env.Engine.ApplyToSession(env.Ctx, s.ID, "op-1", "op-1"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := env.Engine.DecideApplication(env.Ctx, s.ID, "op-1", domain.ApplicationAccepted, "tester"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	want := map[string]bool{
		"session.requested":     false,
		"session.confirmed":     false,
		"application.submitted": false,
		"application.accepted":  false,
	}
	for _, evt := range events {
		if _, ok := want[evt.Type]; ok {
			want[evt.Type] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Fatalf("missing event %s", typ)
		}
	}
}
