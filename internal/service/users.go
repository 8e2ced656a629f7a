package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/iliyamo/vocabulary-sync/internal/model"
	"github.com/iliyamo/vocabulary-sync/internal/repository"
	"github.com/iliyamo/vocabulary-sync/internal/utils"
)

// UserStore is the user persistence the services need.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Upsert(ctx context.Context, u *model.User) (bool, error)
	UpdateStats(ctx context.Context, username string, wordCount int, status model.SubscriptionStatus, expireAt *time.Time) error
	UpdateSubscription(ctx context.Context, u *model.User) error
	SetDataServer(ctx context.Context, id int64, url string) (bool, error)
}

// IdentityPusher sends a full identity snapshot to a data node.
type IdentityPusher interface {
	PushUser(ctx context.Context, target string, u *model.User) error
}

// IdentityFetcher reads a user snapshot from another node.
type IdentityFetcher interface {
	FetchUser(ctx context.Context, target, username string) (*model.User, error)
}

// UserOptions are the registration settings taken from config.
type UserOptions struct {
	SelfHosted bool
	BcryptCost int
}

// Users owns registration, authentication, lazy assignment and the
// receiving side of identity sync.
type Users struct {
	store    UserStore
	registry *Registry
	ledger   *QuotaLedger
	subs     *Subscriptions
	pusher   IdentityPusher
	opts     UserOptions
	log      *slog.Logger

	fetcher   IdentityFetcher
	authority string
}

// NewUsers wires the user service.  registry and pusher are nil on data nodes.
func NewUsers(store UserStore, registry *Registry, ledger *QuotaLedger, subs *Subscriptions, pusher IdentityPusher, opts UserOptions, log *slog.Logger) *Users {
	return &Users{store: store, registry: registry, ledger: ledger, subs: subs, pusher: pusher, opts: opts, log: log}
}

// WithFetcher makes a data node pull identities it has never been sent from
// the authoritative node at authority.
func (s *Users) WithFetcher(f IdentityFetcher, authority string) *Users {
	s.fetcher = f
	s.authority = authority
	return s
}

// lookup reads a local user, falling back to the authoritative node when
// the record is missing here and a fetcher is configured.
func (s *Users) lookup(ctx context.Context, username string) (*model.User, error) {
	u, err := s.store.GetByUsername(ctx, username)
	if !errors.Is(err, repository.ErrNotFound) || s.fetcher == nil || s.authority == "" {
		return u, err
	}
	remote, ferr := s.fetcher.FetchUser(ctx, s.authority, username)
	if ferr != nil {
		s.log.Debug("identity pull failed", slog.String("user", username), slog.Any("error", ferr))
		return nil, err
	}
	if _, err := s.store.Upsert(ctx, remote); err != nil {
		return nil, err
	}
	s.log.Info("identity pulled from authoritative node", slog.String("user", username))
	return s.store.GetByUsername(ctx, username)
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)

// RegisterInput is what a new user supplies.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates the user, attempts data server assignment and pushes the
// identity to the assigned node.  Failing to assign or to push never fails
// registration.
func (s *Users) Register(ctx context.Context, in RegisterInput) (*model.User, string, error) {
	in.Username = strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(in.Username) {
		return nil, "", validationf("username must be 3-64 letters, digits, dot, dash or underscore")
	}
	hash, err := utils.HashPassword(in.Password, s.opts.BcryptCost)
	if errors.Is(err, utils.ErrWeakPassword) {
		return nil, "", validationf("%s", err.Error())
	}
	if err != nil {
		return nil, "", err
	}

	u := &model.User{
		Username:           in.Username,
		Email:              in.Email,
		PasswordHash:       hash,
		IsSelfHosted:       s.opts.SelfHosted,
		SubscriptionStatus: model.SubscriptionTrial,
		PlanName:           "trial",
	}
	if u.IsSelfHosted {
		u.SubscriptionStatus = model.SubscriptionLocalhost
		u.PlanName = "self-hosted"
	}
	u.WordLimit = s.ledger.LimitFor(u)
	if err := s.store.Create(ctx, u); err != nil {
		return nil, "", err
	}

	warning, err := s.EnsureAssigned(ctx, u)
	if err != nil {
		// the user exists; assignment is retried at the next touchpoint
		s.log.Warn("assignment at registration failed", slog.String("user", u.Username), slog.Any("error", err))
	}
	return u, warning, nil
}

// EnsureAssigned gives an unassigned user a data server when one qualifies
// and pushes the identity there.  It is a no-op for assigned users and on
// nodes without a registry.
func (s *Users) EnsureAssigned(ctx context.Context, u *model.User) (string, error) {
	if u.Assigned() || s.registry == nil {
		return "", nil
	}
	server, err := s.registry.Assign(ctx)
	if err != nil {
		return "", err
	}
	if server == nil {
		s.log.Info("no eligible data server, user left unassigned", slog.String("user", u.Username))
		return "", nil
	}
	// reserve a slot first, then claim the user; a lost claim gives it back
	if err := s.registry.IncrementUsers(ctx, server.URL); err != nil {
		return "", err
	}
	won, err := s.store.SetDataServer(ctx, u.ID, server.URL)
	if err != nil || !won {
		if rerr := s.registry.DecrementUsers(ctx, server.URL); rerr != nil {
			s.log.Error("releasing reserved slot failed", slog.String("server", server.URL), slog.Any("error", rerr))
		}
		if err != nil {
			return "", err
		}
		stored, err := s.store.GetByUsername(ctx, u.Username)
		if err != nil {
			return "", err
		}
		u.DataServer = stored.DataServer
		return "", nil
	}
	u.DataServer = server.URL
	s.log.Info("user assigned", slog.String("user", u.Username), slog.String("server", server.URL))

	if s.pusher == nil {
		return "", nil
	}
	if err := s.pusher.PushUser(ctx, server.URL, u); err != nil {
		s.log.Warn("identity sync failed", slog.String("user", u.Username),
			slog.String("server", server.URL), slog.Any("error", err))
		return "identity not synced to data server: " + err.Error(), nil
	}
	return "", nil
}

// Authenticate checks a username/password pair.
func (s *Users) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.lookup(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == "" || !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Current loads the user and applies any lazily detected subscription
// transition.
func (s *Users) Current(ctx context.Context, username string) (*model.User, error) {
	u, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	if _, err := s.subs.Refresh(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Snapshot returns the stored record for a fetch-user call.
func (s *Users) Snapshot(ctx context.Context, username string) (*model.User, error) {
	return s.store.GetByUsername(ctx, username)
}

// ApplyIdentity upserts a pushed identity snapshot by username.
func (s *Users) ApplyIdentity(ctx context.Context, u *model.User) (bool, error) {
	if strings.TrimSpace(u.Username) == "" {
		return false, validationf("username is required")
	}
	return s.store.Upsert(ctx, u)
}

// ApplyStats stores a usage snapshot for a known user.
func (s *Users) ApplyStats(ctx context.Context, username string, wordCount int, status model.SubscriptionStatus, expireAt *time.Time) error {
	if wordCount < 0 {
		return validationf("wordCount must not be negative")
	}
	return s.store.UpdateStats(ctx, username, wordCount, status, expireAt)
}

// ApplyConfig stores pushed subscription and quota fields for a known user.
func (s *Users) ApplyConfig(ctx context.Context, in *model.User) error {
	u, err := s.store.GetByUsername(ctx, in.Username)
	if err != nil {
		return err
	}
	u.IsSelfHosted = in.IsSelfHosted
	u.SubscriptionStatus = in.SubscriptionStatus
	u.SubscriptionExpireAt = in.SubscriptionExpireAt
	u.External = in.External
	u.PlanName = in.PlanName
	u.WordLimit = in.WordLimit
	if in.DataServer != "" {
		u.DataServer = in.DataServer
	}
	return s.store.UpdateSubscription(ctx, u)
}
