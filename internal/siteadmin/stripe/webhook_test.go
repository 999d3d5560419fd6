package stripe

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pageit/pageit-admin/internal/siteadmin/billing"
	"github.com/pageit/pageit-admin/internal/siteadmin/registry"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_secret"

type recordingApplier struct {
	events []billing.Event
	err    error
}

func (a *recordingApplier) Apply(_ context.Context, ev billing.Event) (billing.Outcome, error) {
	a.events = append(a.events, ev)
	if a.err != nil {
		return billing.OutcomeFailed, a.err
	}
	return billing.OutcomeApplied, nil
}

func TestWebhookCheckoutCompletedUpdatesSite(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	if err := reg.Put(ctx, &registry.Site{Key: "acme"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	handler := NewWebhookHandler(testSecret, billing.NewReconciler(reg, nil, billing.Config{}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, testSecret,
		`{"id":"evt_1","object":"event","type":"checkout.session.completed","created":1700000000,"data":{"object":{"id":"cs_1","customer":"cus_123","metadata":{"siteKey":"acme"}}}}`))

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("status=%d body=%q, want 200 OK", rec.Code, rec.Body.String())
	}
	site, err := reg.Get(ctx, "acme")
	if err != nil || site == nil {
		t.Fatalf("Get: site=%v err=%v", site, err)
	}
	if site.PaymentCustomerRef != "cus_123" {
		t.Fatalf("PaymentCustomerRef = %q, want cus_123", site.PaymentCustomerRef)
	}
	if site.SubscriptionStatus != registry.SubscriptionStatusActive {
		t.Fatalf("SubscriptionStatus = %q, want active", site.SubscriptionStatus)
	}
}

func TestWebhookUnmatchedPaymentFailedIsSuccessfulNoop(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	if err := reg.Put(ctx, &registry.Site{Key: "acme", PaymentCustomerRef: "cus_123"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	handler := NewWebhookHandler(testSecret, billing.NewReconciler(reg, nil, billing.Config{}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, testSecret,
		`{"id":"evt_2","object":"event","type":"invoice.payment_failed","data":{"object":{"id":"in_1","customer":"cus_unknown"}}}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	sites, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sites) != 1 || sites[0].SubscriptionStatus != registry.SubscriptionStatusUnset {
		t.Fatalf("sites changed: %+v", sites)
	}
}

func TestWebhookInvalidSignatureNeverReachesStore(t *testing.T) {
	applier := &recordingApplier{}
	handler := NewWebhookHandler(testSecret, applier)

	req := signedWebhookRequest(t, "whsec_other",
		`{"id":"evt_3","object":"event","type":"invoice.paid","data":{"object":{"customer":"cus_123"}}}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest || rec.Body.String() != "Webhook Error" {
		t.Fatalf("status=%d body=%q, want 400 Webhook Error", rec.Code, rec.Body.String())
	}
	if len(applier.events) != 0 {
		t.Fatalf("applier called %d times, want 0", len(applier.events))
	}
}

func TestWebhookMissingSignature(t *testing.T) {
	applier := &recordingApplier{}
	handler := NewWebhookHandler(testSecret, applier)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
	if len(applier.events) != 0 {
		t.Fatal("applier should not be called")
	}
}

func TestWebhookApplyFailureReturns500(t *testing.T) {
	applier := &recordingApplier{err: errors.New("database is locked")}
	handler := NewWebhookHandler(testSecret, applier)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, testSecret,
		`{"id":"evt_4","object":"event","type":"invoice.paid","data":{"object":{"customer":"cus_123"}}}`))

	if rec.Code != http.StatusInternalServerError || rec.Body.String() != "Internal Server Error" {
		t.Fatalf("status=%d body=%q, want 500", rec.Code, rec.Body.String())
	}
}

func TestWebhookDecodesExpandedCustomer(t *testing.T) {
	applier := &recordingApplier{}
	handler := NewWebhookHandler(testSecret, applier)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, testSecret,
		`{"id":"evt_5","object":"event","type":"customer.subscription.deleted","created":1700000000,"data":{"object":{"id":"sub_1","customer":{"id":"cus_exp","object":"customer"},"status":"canceled"}}}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if len(applier.events) != 1 {
		t.Fatalf("applier called %d times, want 1", len(applier.events))
	}
	got := applier.events[0]
	if got.CustomerRef != "cus_exp" || got.Type != billing.EventSubscriptionDeleted {
		t.Fatalf("event = %+v", got)
	}
	if !got.Created.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("Created = %v", got.Created)
	}
}

func TestWebhookRejectsNonPost(t *testing.T) {
	handler := NewWebhookHandler(testSecret, &recordingApplier{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/webhooks/stripe", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d, want 405", rec.Code)
	}
}

func signedWebhookRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func newTestRegistry(t *testing.T) *registry.SiteRegistry {
	t.Helper()
	reg, err := registry.NewSiteRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("NewSiteRegistry: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}
