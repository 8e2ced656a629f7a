package model

import "time"

// SubscriptionStatus is the lifecycle state of a user's subscription.
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionLocalhost SubscriptionStatus = "localhost" // self-hosted, never expires
)

// ExternalSubscription records the link to the third-party billing account
// that vouches for the user's plan.
type ExternalSubscription struct {
	Platform        string     `json:"platform,omitempty"`
	ExternalID      string     `json:"externalId,omitempty"`
	LastVerifiedAt  *time.Time `json:"lastVerifiedAt,omitempty"`
	LastRefreshedAt *time.Time `json:"lastRefreshedAt,omitempty"`
}

// User mirrors a row of the `users` table.  The authoritative node owns the
// record; data nodes hold a synced copy keyed by Username.
//
// Fields:
//
//	WordLimit  – resolved from the plan table at subscription time.
//	WordCount  – denormalized count of vocabulary entries, maintained by
//	             explicit adjustment only.
//	DataServer – URL of the assigned data server, empty until assigned.
type User struct {
	ID                   int64                `json:"id"`
	Username             string               `json:"username"`
	Email                string               `json:"email"`
	PasswordHash         string               `json:"-"`
	IsSelfHosted         bool                 `json:"isSelfHosted"`
	SubscriptionStatus   SubscriptionStatus   `json:"subscriptionStatus"`
	SubscriptionExpireAt *time.Time           `json:"subscriptionExpireAt,omitempty"`
	External             ExternalSubscription `json:"externalSubscription"`
	PlanName             string               `json:"planName"`
	WordLimit            int                  `json:"wordLimit"`
	WordCount            int                  `json:"wordCount"`
	DataServer           string               `json:"dataServer"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
}

// Assigned reports whether the user has a data server.
func (u *User) Assigned() bool { return u.DataServer != "" }
