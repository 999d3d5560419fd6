package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestRegistry(t *testing.T) *SiteRegistry {
	t.Helper()
	reg, err := NewSiteRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("NewSiteRegistry: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func putSite(t *testing.T, reg *SiteRegistry, s *Site) {
	t.Helper()
	if err := reg.Put(context.Background(), s); err != nil {
		t.Fatalf("Put(%s): %v", s.Key, err)
	}
}

func boolPtr(b bool) *bool       { return &b }
func stringPtr(s string) *string { return &s }

func TestGenerateOwnerID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateOwnerID()
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(id, "o_") || len(id) != 12 {
			t.Fatalf("unexpected owner id %q", id)
		}
		for _, c := range id[2:] {
			if !strings.ContainsRune(crockfordBase32, c) {
				t.Fatalf("character %q not in Crockford base32 alphabet (id=%s)", c, id)
			}
		}
		if seen[id] {
			t.Fatalf("duplicate owner ID: %s", id)
		}
		seen[id] = true
	}
}

func TestPutAndGet(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	putSite(t, reg, &Site{
		Key:        "acme",
		SiteName:   "Acme",
		OwnerEmail: "owner@acme.test",
		OwnerPhone: "03-0000-0000",
	})

	got, err := reg.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.SiteName != "Acme" {
		t.Errorf("SiteName = %q, want Acme", got.SiteName)
	}
	if got.PaymentCustomerRef != "" {
		t.Errorf("PaymentCustomerRef = %q, want empty", got.PaymentCustomerRef)
	}
	if got.IsFreePlan != nil {
		t.Errorf("IsFreePlan = %v, want nil", *got.IsFreePlan)
	}
	if !got.FreePlan() {
		t.Error("absent free-plan flag should count as free")
	}
	if got.SubscriptionStatus != SubscriptionStatusUnset {
		t.Errorf("SubscriptionStatus = %q, want unset", got.SubscriptionStatus)
	}

	missing, err := reg.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing site")
	}

	exists, err := reg.Exists(ctx, "acme")
	if err != nil || !exists {
		t.Fatalf("Exists(acme) = %v, %v", exists, err)
	}
	exists, err = reg.Exists(ctx, "nope")
	if err != nil || exists {
		t.Fatalf("Exists(nope) = %v, %v", exists, err)
	}
}

func TestPutOverwriteResetsBillingFields(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	putSite(t, reg, &Site{Key: "acme", SiteName: "Old"})
	if err := reg.MarkCheckoutCompleted(ctx, "acme", "cus_old"); err != nil {
		t.Fatalf("MarkCheckoutCompleted: %v", err)
	}

	putSite(t, reg, &Site{Key: "acme", SiteName: "New"})

	got, err := reg.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SiteName != "New" {
		t.Errorf("SiteName = %q, want New", got.SiteName)
	}
	if got.PaymentCustomerRef != "" || got.SubscriptionStatus != SubscriptionStatusUnset {
		t.Errorf("billing fields not reset: ref=%q status=%q", got.PaymentCustomerRef, got.SubscriptionStatus)
	}
}

func TestBillingFieldUpdatesArePartial(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	putSite(t, reg, &Site{Key: "acme", SiteName: "Acme", HomepageURL: "https://acme.test"})

	if err := reg.MarkCheckoutCompleted(ctx, "acme", "cus_123"); err != nil {
		t.Fatalf("MarkCheckoutCompleted: %v", err)
	}
	if err := reg.SetCancelPending(ctx, "acme", true); err != nil {
		t.Fatalf("SetCancelPending: %v", err)
	}
	if err := reg.SetSubscriptionStatus(ctx, "acme", SubscriptionStatusUnpaid); err != nil {
		t.Fatalf("SetSubscriptionStatus: %v", err)
	}

	got, err := reg.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PaymentCustomerRef != "cus_123" {
		t.Errorf("PaymentCustomerRef = %q", got.PaymentCustomerRef)
	}
	if got.SubscriptionStatus != SubscriptionStatusUnpaid {
		t.Errorf("SubscriptionStatus = %q", got.SubscriptionStatus)
	}
	if !got.CancelPending {
		t.Error("CancelPending should be true")
	}
	if got.HomepageURL != "https://acme.test" || got.SiteName != "Acme" {
		t.Errorf("metadata clobbered: %+v", got)
	}
}

func TestUpdatesOnMissingSiteReturnNotFound(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.SetSubscriptionStatus(ctx, "ghost", SubscriptionStatusActive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetSubscriptionStatus err = %v, want ErrNotFound", err)
	}
	if err := reg.MarkCheckoutCompleted(ctx, "ghost", "cus_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkCheckoutCompleted err = %v, want ErrNotFound", err)
	}
	if err := reg.Update(ctx, "ghost", SiteUpdate{SiteName: stringPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update err = %v, want ErrNotFound", err)
	}
}

func TestFindByCustomerRefReturnsFirstMatch(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	first := &Site{Key: "alpha", CreatedAt: time.Now().Add(-time.Hour).UTC()}
	second := &Site{Key: "beta"}
	putSite(t, reg, first)
	putSite(t, reg, second)
	for _, key := range []string{"alpha", "beta"} {
		if err := reg.Update(ctx, key, SiteUpdate{PaymentCustomerRef: stringPtr("cus_shared")}); err != nil {
			t.Fatalf("Update(%s): %v", key, err)
		}
	}

	got, err := reg.FindByCustomerRef(ctx, "cus_shared")
	if err != nil {
		t.Fatalf("FindByCustomerRef: %v", err)
	}
	if got == nil || got.Key != "alpha" {
		t.Fatalf("FindByCustomerRef = %+v, want alpha", got)
	}

	none, err := reg.FindByCustomerRef(ctx, "cus_unknown")
	if err != nil || none != nil {
		t.Fatalf("FindByCustomerRef(unknown) = %+v, %v", none, err)
	}
	empty, err := reg.FindByCustomerRef(ctx, "")
	if err != nil || empty != nil {
		t.Fatalf("FindByCustomerRef(empty) = %+v, %v", empty, err)
	}
}

func TestUpdateMetadataAndFreePlanFlag(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	putSite(t, reg, &Site{Key: "acme", OwnerName: "Taro"})

	err := reg.Update(ctx, "acme", SiteUpdate{
		HomepageURL: stringPtr("https://new.acme.test"),
		IsFreePlan:  boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := reg.Get(ctx, "acme")
	if got.HomepageURL != "https://new.acme.test" {
		t.Errorf("HomepageURL = %q", got.HomepageURL)
	}
	if got.IsFreePlan == nil || *got.IsFreePlan {
		t.Errorf("IsFreePlan = %v, want explicit false", got.IsFreePlan)
	}
	if got.FreePlan() {
		t.Error("FreePlan() should be false")
	}
	if got.OwnerName != "Taro" {
		t.Errorf("OwnerName clobbered: %q", got.OwnerName)
	}
}

func TestCountBySubscriptionStatus(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	putSite(t, reg, &Site{Key: "a"})
	putSite(t, reg, &Site{Key: "b"})
	putSite(t, reg, &Site{Key: "c"})
	_ = reg.SetSubscriptionStatus(ctx, "a", SubscriptionStatusActive)
	_ = reg.SetSubscriptionStatus(ctx, "b", SubscriptionStatusActive)

	counts, err := reg.CountBySubscriptionStatus(ctx)
	if err != nil {
		t.Fatalf("CountBySubscriptionStatus: %v", err)
	}
	if counts[SubscriptionStatusActive] != 2 {
		t.Errorf("active = %d, want 2", counts[SubscriptionStatusActive])
	}
	if counts[SubscriptionStatusUnset] != 1 {
		t.Errorf("unset = %d, want 1", counts[SubscriptionStatusUnset])
	}
}

func TestOwners(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	owner := &Owner{ID: "o_TEST000001", Email: " Owner@Acme.test "}
	if err := reg.CreateOwnerWithSite(ctx, owner, "s3cret", &Site{Key: "acme", OwnerID: owner.ID}); err != nil {
		t.Fatalf("CreateOwnerWithSite: %v", err)
	}

	got, err := reg.GetOwnerByEmail(ctx, "owner@acme.test")
	if err != nil || got == nil {
		t.Fatalf("GetOwnerByEmail = %+v, %v", got, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("s3cret")); err != nil {
		t.Errorf("expected password to match: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("wrong")); err == nil {
		t.Error("expected wrong password to fail")
	}
	if site, _ := reg.Get(ctx, "acme"); site == nil || site.OwnerID != owner.ID {
		t.Fatalf("site = %+v, want owner %s", site, owner.ID)
	}

	dup := &Owner{ID: "o_TEST000002", Email: "owner@acme.test"}
	if err := reg.CreateOwnerWithSite(ctx, dup, "x", &Site{Key: "other", OwnerID: dup.ID}); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("duplicate CreateOwnerWithSite err = %v, want ErrEmailInUse", err)
	}
	if ok, _ := reg.Exists(ctx, "other"); ok {
		t.Fatal("site written for rejected owner")
	}

	if got, err := reg.GetOwnerByEmail(ctx, "nobody@acme.test"); err != nil || got != nil {
		t.Fatalf("GetOwnerByEmail(unknown) = %+v, %v; want nil, nil", got, err)
	}
}

func TestCreateOwnerWithSiteRollsBackOwnerWhenSiteWriteFails(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.db.ExecContext(ctx, `
		CREATE TRIGGER refuse_blocked_site BEFORE INSERT ON sites
		WHEN NEW.id = 'blocked'
		BEGIN SELECT RAISE(ABORT, 'site write refused'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	owner := &Owner{ID: "o_TEST000001", Email: "owner@acme.test"}
	if err := reg.CreateOwnerWithSite(ctx, owner, "s3cret", &Site{Key: "blocked", OwnerID: owner.ID}); err == nil {
		t.Fatal("expected site write to fail")
	}
	if got, err := reg.GetOwnerByEmail(ctx, "owner@acme.test"); err != nil || got != nil {
		t.Fatalf("owner kept after failed site write: %+v, %v", got, err)
	}

	retry := &Owner{ID: "o_TEST000002", Email: "owner@acme.test"}
	if err := reg.CreateOwnerWithSite(ctx, retry, "s3cret", &Site{Key: "acme", OwnerID: retry.ID}); err != nil {
		t.Fatalf("retry with same email: %v", err)
	}
}

func TestWebhookEvents(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"evt_1", "evt_2"} {
		if err := reg.RecordWebhookEvent(ctx, &WebhookEvent{
			EventID:      id,
			EventType:    "invoice.paid",
			CustomerRef:  "cus_1",
			Outcome:      "applied",
			EventCreated: time.Unix(1700000000, 0),
		}); err != nil {
			t.Fatalf("RecordWebhookEvent: %v", err)
		}
	}

	events, err := reg.ListWebhookEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListWebhookEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for _, e := range events {
		if e.ID == "" || e.EventType != "invoice.paid" {
			t.Fatalf("unexpected event %+v", e)
		}
	}
}

func TestListWebhookEventsNewestFirstWithinSameSecond(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	received := time.Unix(1700000100, 0).UTC()

	const n = 50
	for i := 0; i < n; i++ {
		if err := reg.RecordWebhookEvent(ctx, &WebhookEvent{
			EventID:      fmt.Sprintf("evt_%d", i),
			EventType:    "invoice.paid",
			Outcome:      "applied",
			EventCreated: received,
			ReceivedAt:   received,
		}); err != nil {
			t.Fatalf("RecordWebhookEvent(%d): %v", i, err)
		}
	}

	events, err := reg.ListWebhookEvents(ctx, n)
	if err != nil {
		t.Fatalf("ListWebhookEvents: %v", err)
	}
	if len(events) != n {
		t.Fatalf("got %d events, want %d", len(events), n)
	}
	for i, e := range events {
		if want := fmt.Sprintf("evt_%d", n-1-i); e.EventID != want {
			t.Fatalf("events[%d] = %s, want %s", i, e.EventID, want)
		}
	}
}
