package stripe

import (
	"context"
	"fmt"

	"github.com/pageit/pageit-admin/internal/siteadmin/billing"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
)

// Client implements billing.Provider on top of the Stripe API.
type Client struct{}

var _ billing.Provider = (*Client)(nil)

// NewClient configures the Stripe API key and returns a Client.
func NewClient(apiKey string) *Client {
	stripelib.Key = apiKey
	return &Client{}
}

// ListSubscriptions returns up to limit subscriptions for a customer. status is
// a Stripe list filter such as "all" or "active".
func (c *Client) ListSubscriptions(ctx context.Context, customerRef, status string, limit int) ([]billing.Subscription, error) {
	params := &stripelib.SubscriptionListParams{
		Customer: stripelib.String(customerRef),
		Status:   stripelib.String(status),
	}
	params.Context = ctx
	params.Limit = stripelib.Int64(int64(limit))

	out := make([]billing.Subscription, 0, limit)
	iter := subscription.List(params)
	for iter.Next() {
		s := iter.Subscription()
		out = append(out, billing.Subscription{
			ID:                s.ID,
			Status:            string(s.Status),
			CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		})
		if len(out) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list subscriptions: %w", err)
	}
	return out, nil
}

// SetCancelAtPeriodEnd toggles cancel_at_period_end on a subscription.
func (c *Client) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error {
	params := &stripelib.SubscriptionParams{
		CancelAtPeriodEnd: stripelib.Bool(cancel),
	}
	params.Context = ctx
	if _, err := subscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("stripe: update subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// CreateCheckoutSession creates a subscription-mode checkout session and
// returns its hosted URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (string, error) {
	params := &stripelib.CheckoutSessionParams{
		Mode:     stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		Customer: stripelib.String(p.CustomerRef),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{Price: stripelib.String(p.PriceID), Quantity: stripelib.Int64(1)},
		},
		SuccessURL: stripelib.String(p.SuccessURL),
		CancelURL:  stripelib.String(p.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("siteKey", p.SiteKey)

	s, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return s.URL, nil
}

// CreateCustomer creates a Stripe customer tagged with the site key.
func (c *Client) CreateCustomer(ctx context.Context, p billing.CustomerParams) (string, error) {
	params := &stripelib.CustomerParams{
		Email: stripelib.String(p.Email),
		Name:  stripelib.String(p.Name),
	}
	params.Context = ctx
	if p.SiteKey != "" {
		params.AddMetadata("siteKey", p.SiteKey)
	}

	cus, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return cus.ID, nil
}

// CreateSubscription subscribes a customer to a single price.
func (c *Client) CreateSubscription(ctx context.Context, customerRef, priceID string, metadata map[string]string) (string, error) {
	params := &stripelib.SubscriptionParams{
		Customer: stripelib.String(customerRef),
		Items: []*stripelib.SubscriptionItemsParams{
			{Price: stripelib.String(priceID)},
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sub, err := subscription.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create subscription: %w", err)
	}
	return sub.ID, nil
}
