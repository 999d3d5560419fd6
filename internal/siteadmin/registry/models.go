package registry

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// SubscriptionStatus is the push-derived billing status persisted per site.
// The zero value means no billing event has been applied yet.
type SubscriptionStatus string

const (
	SubscriptionStatusUnset    SubscriptionStatus = ""
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusUnpaid   SubscriptionStatus = "unpaid"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Site is the per-tenant record: site metadata plus the mirrored billing fields.
type Site struct {
	Key                string             `json:"siteKey"`
	OwnerID            string             `json:"ownerId"`
	SiteName           string             `json:"siteName"`
	OwnerName          string             `json:"ownerName"`
	OwnerAddress       string             `json:"ownerAddress"`
	OwnerEmail         string             `json:"ownerEmail"`
	OwnerPhone         string             `json:"ownerPhone"`
	HomepageURL        string             `json:"homepageUrl,omitempty"`
	PaymentCustomerRef string             `json:"paymentCustomerRef,omitempty"`
	IsFreePlan         *bool              `json:"isFreePlan,omitempty"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus,omitempty"`
	CancelPending      bool               `json:"cancelPending"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// FreePlan reports whether the site is on the free plan. An unset flag counts
// as free.
func (s *Site) FreePlan() bool {
	return s.IsFreePlan == nil || *s.IsFreePlan
}

// SiteUpdate is a partial update of site metadata. Nil fields are left untouched.
type SiteUpdate struct {
	SiteName           *string
	OwnerName          *string
	OwnerAddress       *string
	OwnerPhone         *string
	HomepageURL        *string
	IsFreePlan         *bool
	PaymentCustomerRef *string
}

// Empty reports whether the update carries no fields.
func (u SiteUpdate) Empty() bool {
	return u.SiteName == nil && u.OwnerName == nil && u.OwnerAddress == nil &&
		u.OwnerPhone == nil && u.HomepageURL == nil && u.IsFreePlan == nil &&
		u.PaymentCustomerRef == nil
}

// Owner is a site owner account.
type Owner struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// WebhookEvent is one entry of the webhook audit trail.
type WebhookEvent struct {
	ID           string    `json:"id"`
	EventID      string    `json:"eventId"`
	EventType    string    `json:"eventType"`
	CustomerRef  string    `json:"customerRef,omitempty"`
	SiteKey      string    `json:"siteKey,omitempty"`
	Outcome      string    `json:"outcome"`
	EventCreated time.Time `json:"eventCreated"`
	ReceivedAt   time.Time `json:"receivedAt"`
}

// crockfordBase32 is the Crockford base32 alphabet (excludes I, L, O, U).
const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// GenerateOwnerID returns an owner ID of the form "o_" followed by 10 random
// Crockford base32 characters.
func GenerateOwnerID() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate owner id: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("o_")
	for _, v := range b {
		sb.WriteByte(crockfordBase32[int(v)%len(crockfordBase32)])
	}
	return sb.String(), nil
}
