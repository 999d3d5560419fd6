package billing

import (
	"context"
	"errors"
	"sync"

	"github.com/pageit/pageit-admin/internal/siteadmin/registry"
)

type memStore struct {
	mu      sync.Mutex
	sites   map[string]*registry.Site
	calls   int
	failSet error
}

func newMemStore(sites ...*registry.Site) *memStore {
	s := &memStore{sites: make(map[string]*registry.Site)}
	for _, site := range sites {
		s.sites[site.Key] = site
	}
	return s
}

func (s *memStore) snapshot(key string) registry.Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.sites[key]
}

func (s *memStore) Get(_ context.Context, key string) (*registry.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	site, ok := s.sites[key]
	if !ok {
		return nil, nil
	}
	cp := *site
	return &cp, nil
}

func (s *memStore) FindByCustomerRef(_ context.Context, ref string) (*registry.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, site := range s.sites {
		if ref != "" && site.PaymentCustomerRef == ref {
			cp := *site
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) MarkCheckoutCompleted(_ context.Context, key, ref string) error {
	return s.mutate(key, func(site *registry.Site) {
		site.PaymentCustomerRef = ref
		site.SubscriptionStatus = registry.SubscriptionStatusActive
	})
}

func (s *memStore) SetSubscriptionStatus(_ context.Context, key string, status registry.SubscriptionStatus) error {
	return s.mutate(key, func(site *registry.Site) { site.SubscriptionStatus = status })
}

func (s *memStore) SetCancelPending(_ context.Context, key string, pending bool) error {
	return s.mutate(key, func(site *registry.Site) { site.CancelPending = pending })
}

func (s *memStore) mutate(key string, fn func(*registry.Site)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failSet != nil {
		return s.failSet
	}
	site, ok := s.sites[key]
	if !ok {
		return registry.ErrNotFound
	}
	fn(site)
	return nil
}

type cancelCall struct {
	subscriptionID string
	cancel         bool
}

type fakeProvider struct {
	subs        []Subscription
	listErr     error
	listCalls   int
	lastFilter  string
	lastLimit   int
	cancelCalls []cancelCall
	checkouts   []CheckoutParams
	customers   []CustomerParams
	createdSubs []map[string]string
}

func (p *fakeProvider) ListSubscriptions(_ context.Context, _ string, status string, limit int) ([]Subscription, error) {
	p.listCalls++
	p.lastFilter = status
	p.lastLimit = limit
	if p.listErr != nil {
		return nil, p.listErr
	}
	var out []Subscription
	for _, s := range p.subs {
		if status == StatusFilterActive && s.Status != SubscriptionActive {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (p *fakeProvider) SetCancelAtPeriodEnd(_ context.Context, id string, cancel bool) error {
	p.cancelCalls = append(p.cancelCalls, cancelCall{subscriptionID: id, cancel: cancel})
	return nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, params CheckoutParams) (string, error) {
	p.checkouts = append(p.checkouts, params)
	return "https://checkout.stripe.test/c/cs_1", nil
}

func (p *fakeProvider) CreateCustomer(_ context.Context, params CustomerParams) (string, error) {
	p.customers = append(p.customers, params)
	return "cus_new", nil
}

func (p *fakeProvider) CreateSubscription(_ context.Context, _, _ string, metadata map[string]string) (string, error) {
	p.createdSubs = append(p.createdSubs, metadata)
	return "sub_new", nil
}

var errBoom = errors.New("boom")

func boolPtr(b bool) *bool { return &b }

func paidSite(key, ref string) *registry.Site {
	return &registry.Site{Key: key, PaymentCustomerRef: ref, IsFreePlan: boolPtr(false)}
}
