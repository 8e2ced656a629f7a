package syncer

import (
	"time"

	"github.com/iliyamo/vocabulary-sync/internal/model"
)

// Endpoint paths.  They are part of the signed string, so sender and
// receiver must agree on them exactly.
const (
	PathSyncUser       = "/server-sync/sync-user"
	PathSyncUserStats  = "/server-sync/sync-user-stats"
	PathSyncUserConfig = "/server-sync/sync-user-config"
	PathFetchUser      = "/server-sync/user/"
)

// Message types, used as metric labels and deferred event types.
const (
	TypeSyncUser       = "sync-user"
	TypeSyncUserStats  = "sync-user-stats"
	TypeSyncUserConfig = "sync-user-config"
)

// UserPayload is the full identity snapshot of sync-user and fetch-user.
type UserPayload struct {
	Username             string                     `json:"username" validate:"required"`
	Email                string                     `json:"email"`
	PasswordHash         string                     `json:"passwordHash"`
	IsSelfHosted         bool                       `json:"isSelfHosted"`
	SubscriptionStatus   model.SubscriptionStatus   `json:"subscriptionStatus" validate:"required,oneof=trial active expired localhost"`
	SubscriptionExpireAt *time.Time                 `json:"subscriptionExpireAt,omitempty"`
	ExternalSubscription model.ExternalSubscription `json:"externalSubscription"`
	PlanName             string                     `json:"planName"`
	WordLimit            int                        `json:"wordLimit" validate:"gte=0"`
	DataServer           string                     `json:"dataServer"`
}

// StatsPayload is the usage snapshot a data node reports.
type StatsPayload struct {
	Username             string                   `json:"username" validate:"required"`
	WordCount            int                      `json:"wordCount" validate:"gte=0"`
	SubscriptionStatus   model.SubscriptionStatus `json:"subscriptionStatus" validate:"required,oneof=trial active expired localhost"`
	SubscriptionExpireAt *time.Time               `json:"subscriptionExpireAt,omitempty"`
}

// ConfigPayload carries subscription, plan and quota fields, no credentials.
type ConfigPayload struct {
	Username             string                     `json:"username" validate:"required"`
	IsSelfHosted         bool                       `json:"isSelfHosted"`
	SubscriptionStatus   model.SubscriptionStatus   `json:"subscriptionStatus" validate:"required,oneof=trial active expired localhost"`
	SubscriptionExpireAt *time.Time                 `json:"subscriptionExpireAt,omitempty"`
	ExternalSubscription model.ExternalSubscription `json:"externalSubscription"`
	PlanName             string                     `json:"planName"`
	WordLimit            int                        `json:"wordLimit" validate:"gte=0"`
	DataServer           string                     `json:"dataServer"`
}

func NewUserPayload(u *model.User) UserPayload {
	return UserPayload{
		Username:             u.Username,
		Email:                u.Email,
		PasswordHash:         u.PasswordHash,
		IsSelfHosted:         u.IsSelfHosted,
		SubscriptionStatus:   u.SubscriptionStatus,
		SubscriptionExpireAt: u.SubscriptionExpireAt,
		ExternalSubscription: u.External,
		PlanName:             u.PlanName,
		WordLimit:            u.WordLimit,
		DataServer:           u.DataServer,
	}
}

// User converts the payload into a record ready for upsert.
func (p UserPayload) User() *model.User {
	return &model.User{
		Username:             p.Username,
		Email:                p.Email,
		PasswordHash:         p.PasswordHash,
		IsSelfHosted:         p.IsSelfHosted,
		SubscriptionStatus:   p.SubscriptionStatus,
		SubscriptionExpireAt: p.SubscriptionExpireAt,
		External:             p.ExternalSubscription,
		PlanName:             p.PlanName,
		WordLimit:            p.WordLimit,
		DataServer:           p.DataServer,
	}
}

func NewStatsPayload(u *model.User) StatsPayload {
	return StatsPayload{
		Username:             u.Username,
		WordCount:            u.WordCount,
		SubscriptionStatus:   u.SubscriptionStatus,
		SubscriptionExpireAt: u.SubscriptionExpireAt,
	}
}

func NewConfigPayload(u *model.User) ConfigPayload {
	return ConfigPayload{
		Username:             u.Username,
		IsSelfHosted:         u.IsSelfHosted,
		SubscriptionStatus:   u.SubscriptionStatus,
		SubscriptionExpireAt: u.SubscriptionExpireAt,
		ExternalSubscription: u.External,
		PlanName:             u.PlanName,
		WordLimit:            u.WordLimit,
		DataServer:           u.DataServer,
	}
}

// User converts the payload into the fields ApplyConfig reads.
func (p ConfigPayload) User() *model.User {
	return &model.User{
		Username:             p.Username,
		IsSelfHosted:         p.IsSelfHosted,
		SubscriptionStatus:   p.SubscriptionStatus,
		SubscriptionExpireAt: p.SubscriptionExpireAt,
		External:             p.ExternalSubscription,
		PlanName:             p.PlanName,
		WordLimit:            p.WordLimit,
		DataServer:           p.DataServer,
	}
}
