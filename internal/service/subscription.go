package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/vocabulary-sync/internal/model"
)

// ErrSubscriptionInactive is returned when the external provider does not
// vouch for an active plan.
var ErrSubscriptionInactive = errors.New("external subscription is not active")

// Evaluate returns the status the user should have at now.  Self-hosted
// users and localhost status are terminal.  Expiry is only ever detected
// here, on read; there is no background sweep.
func Evaluate(u *model.User, now time.Time) model.SubscriptionStatus {
	if u.IsSelfHosted || u.SubscriptionStatus == model.SubscriptionLocalhost {
		return model.SubscriptionLocalhost
	}
	if u.SubscriptionExpireAt == nil {
		return u.SubscriptionStatus
	}
	if now.After(*u.SubscriptionExpireAt) {
		return model.SubscriptionExpired
	}
	if u.SubscriptionStatus == model.SubscriptionExpired {
		return model.SubscriptionActive
	}
	return u.SubscriptionStatus
}

// Verification is what the external provider reports for an account.
type Verification struct {
	Active   bool      `json:"active"`
	PlanName string    `json:"planName"`
	ExpireAt time.Time `json:"expireAt"`
}

// PlanVerifier asks the external subscription provider about an account.
type PlanVerifier interface {
	Verify(ctx context.Context, platform, externalID string) (Verification, error)
}

// HTTPPlanVerifier queries a JSON endpoint:
// GET <base>?platform=..&externalId=.. -> {"active":..,"planName":..,"expireAt":..}
type HTTPPlanVerifier struct {
	base   string
	client *http.Client
}

// NewHTTPPlanVerifier targets the provider endpoint at base.
func NewHTTPPlanVerifier(base string, timeout time.Duration) *HTTPPlanVerifier {
	return &HTTPPlanVerifier{base: base, client: &http.Client{Timeout: timeout}}
}

func (v *HTTPPlanVerifier) Verify(ctx context.Context, platform, externalID string) (Verification, error) {
	q := url.Values{"platform": {platform}, "externalId": {externalID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.base+"?"+q.Encode(), nil)
	if err != nil {
		return Verification{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := v.client.Do(req)
	if err != nil {
		return Verification{}, fmt.Errorf("subscription provider: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Verification{}, ErrSubscriptionInactive
	}
	if resp.StatusCode != http.StatusOK {
		return Verification{}, fmt.Errorf("subscription provider: status %d", resp.StatusCode)
	}
	var out Verification
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Verification{}, fmt.Errorf("subscription provider: decode: %w", err)
	}
	return out, nil
}

// SubscriptionStore persists subscription changes.
type SubscriptionStore interface {
	SetStatus(ctx context.Context, id int64, status model.SubscriptionStatus) error
	UpdateSubscription(ctx context.Context, u *model.User) error
}

// ConfigPusher sends plan and quota changes to the user's data node.
type ConfigPusher interface {
	PushUserConfig(ctx context.Context, target string, u *model.User) error
}

// Subscriptions drives the subscription state machine.
type Subscriptions struct {
	store    SubscriptionStore
	verifier PlanVerifier
	ledger   *QuotaLedger
	pusher   ConfigPusher
	log      *slog.Logger
	now      func() time.Time
}

// NewSubscriptions wires the state machine.  verifier may be nil.
func NewSubscriptions(store SubscriptionStore, verifier PlanVerifier, ledger *QuotaLedger, pusher ConfigPusher, log *slog.Logger) *Subscriptions {
	return &Subscriptions{store: store, verifier: verifier, ledger: ledger, pusher: pusher, log: log, now: time.Now}
}

// Refresh applies any lazily detected transition and persists it.
func (s *Subscriptions) Refresh(ctx context.Context, u *model.User) (bool, error) {
	next := Evaluate(u, s.now())
	if next == u.SubscriptionStatus {
		return false, nil
	}
	if err := s.store.SetStatus(ctx, u.ID, next); err != nil {
		return false, err
	}
	s.log.Info("subscription transition", slog.String("user", u.Username),
		slog.String("from", string(u.SubscriptionStatus)), slog.String("to", string(next)))
	u.SubscriptionStatus = next
	return true, nil
}

// Verify asks the provider about the user's external account and, when it
// is active, moves the user to active with the provider's plan and expiry.
// The returned warning is non-empty when the config push to the data node
// failed; the local change stands either way.
func (s *Subscriptions) Verify(ctx context.Context, u *model.User, platform, externalID string) (string, error) {
	if u.IsSelfHosted {
		return "", validationf("self-hosted accounts have no subscription")
	}
	if s.verifier == nil {
		return "", errors.New("subscription verification is not configured")
	}
	platform = strings.TrimSpace(platform)
	externalID = strings.TrimSpace(externalID)
	if platform == "" || externalID == "" {
		return "", validationf("platform and externalId are required")
	}
	v, err := s.verifier.Verify(ctx, platform, externalID)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	if !v.Active || !v.ExpireAt.After(now) {
		return "", ErrSubscriptionInactive
	}

	expire := v.ExpireAt.UTC()
	u.External = model.ExternalSubscription{
		Platform:        platform,
		ExternalID:      externalID,
		LastVerifiedAt:  &now,
		LastRefreshedAt: &now,
	}
	u.SubscriptionStatus = model.SubscriptionActive
	u.SubscriptionExpireAt = &expire
	u.PlanName = v.PlanName
	u.WordLimit = s.ledger.LimitFor(u)
	if err := s.store.UpdateSubscription(ctx, u); err != nil {
		return "", err
	}
	return s.pushConfig(ctx, u), nil
}

func (s *Subscriptions) pushConfig(ctx context.Context, u *model.User) string {
	if s.pusher == nil || !u.Assigned() {
		return ""
	}
	if err := s.pusher.PushUserConfig(ctx, u.DataServer, u); err != nil {
		s.log.Warn("config sync failed", slog.String("user", u.Username),
			slog.String("server", u.DataServer), slog.Any("error", err))
		return "subscription not synced to data server: " + err.Error()
	}
	return ""
}
