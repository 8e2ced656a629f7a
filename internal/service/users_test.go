package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/vocabulary-sync/internal/model"
	"github.com/iliyamo/vocabulary-sync/internal/repository"
	"github.com/iliyamo/vocabulary-sync/internal/utils"
)

type usersFixture struct {
	users   *memUsers
	servers *memServers
	pusher  *fakeIdentity
	svc     *Users
}

func newUsersFixture(selfHosted bool, servers ...model.DataServer) *usersFixture {
	users := newMemUsers()
	store := newMemServers(servers...)
	pusher := &fakeIdentity{}
	ledger := newLedger(users)
	subs := NewSubscriptions(users, nil, ledger, nil, discardLogger())
	svc := NewUsers(users, newRegistry(store, nil), ledger, subs, pusher,
		UserOptions{SelfHosted: selfHosted, BcryptCost: bcrypt.MinCost}, discardLogger())
	return &usersFixture{users: users, servers: store, pusher: pusher, svc: svc}
}

func TestRegisterWithoutEligibleServer(t *testing.T) {
	f := newUsersFixture(false, server(1, "https://full", 1, 5, 5))

	u, warning, err := f.svc.Register(context.Background(), RegisterInput{Username: "alice", Email: "a@x.org", Password: "correct horse"})
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.False(t, u.Assigned())
	assert.Equal(t, model.SubscriptionTrial, u.SubscriptionStatus)
	assert.Equal(t, 1000, u.WordLimit)
	assert.Empty(t, f.pusher.targets)
	assert.NotEqual(t, "correct horse", u.PasswordHash)
}

func TestRegisterAssignsAndPushes(t *testing.T) {
	f := newUsersFixture(false, server(1, "https://eu-1", 10, 0, 1), server(2, "https://eu-2", 5, 0, 10))
	ctx := context.Background()

	a, _, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	b, _, err := f.svc.Register(ctx, RegisterInput{Username: "bob", Password: "password2"})
	require.NoError(t, err)

	assert.Equal(t, "https://eu-1", a.DataServer)
	assert.Equal(t, "https://eu-2", b.DataServer)
	assert.Equal(t, []string{"https://eu-1", "https://eu-2"}, f.pusher.targets)

	stored, _ := f.users.GetByUsername(ctx, "bob")
	assert.Equal(t, "https://eu-2", stored.DataServer)
	all, _ := f.servers.List(ctx)
	assert.Equal(t, 1, all[0].UserCount)
	assert.Equal(t, 1, all[1].UserCount)
}

func TestRegisterPushFailureIsAWarning(t *testing.T) {
	f := newUsersFixture(false, server(1, "https://eu-1", 10, 0, 10))
	f.pusher.err = errors.New("timeout")

	u, warning, err := f.svc.Register(context.Background(), RegisterInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, "https://eu-1", u.DataServer)
	assert.Contains(t, warning, "timeout")
}

func TestRegisterSelfHosted(t *testing.T) {
	f := newUsersFixture(true)

	u, _, err := f.svc.Register(context.Background(), RegisterInput{Username: "local", Password: "password1"})
	require.NoError(t, err)
	assert.True(t, u.IsSelfHosted)
	assert.Equal(t, model.SubscriptionLocalhost, u.SubscriptionStatus)
	assert.Equal(t, 1_000_000, u.WordLimit)
}

func TestRegisterValidation(t *testing.T) {
	f := newUsersFixture(false)
	ctx := context.Background()

	_, _, err := f.svc.Register(ctx, RegisterInput{Username: "a b", Password: "password1"})
	assert.ErrorIs(t, err, ErrValidation)
	_, _, err = f.svc.Register(ctx, RegisterInput{Username: "alice", Password: "short"})
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = f.svc.Register(ctx, RegisterInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	_, _, err = f.svc.Register(ctx, RegisterInput{Username: "alice", Password: "password1"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestEnsureAssignedIsLazy(t *testing.T) {
	f := newUsersFixture(false)
	ctx := context.Background()
	u, _, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	require.False(t, u.Assigned())

	require.NoError(t, f.servers.Create(ctx, &model.DataServer{
		URL: "https://late", Name: "late", Status: model.ServerActive, Available: true, MaxUsers: 10,
	}))
	_, err = f.svc.EnsureAssigned(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, "https://late", u.DataServer)

	// already assigned: nothing more happens
	_, err = f.svc.EnsureAssigned(ctx, u)
	require.NoError(t, err)
	assert.Len(t, f.pusher.targets, 1)
}

func TestEnsureAssignedCountsAUserOnce(t *testing.T) {
	f := newUsersFixture(false, server(1, "https://eu-1", 1, 0, 10))
	ctx := context.Background()
	stored := f.users.put(model.User{Username: "alice"})

	// two requests holding the same unassigned user race to assign it
	first, second := *stored, *stored
	_, err := f.svc.EnsureAssigned(ctx, &first)
	require.NoError(t, err)
	_, err = f.svc.EnsureAssigned(ctx, &second)
	require.NoError(t, err)

	assert.Equal(t, "https://eu-1", first.DataServer)
	assert.Equal(t, "https://eu-1", second.DataServer)
	s, err := f.servers.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.UserCount)
	assert.Equal(t, []string{"https://eu-1"}, f.pusher.targets)
}

func TestAuthenticate(t *testing.T) {
	f := newUsersFixture(false)
	ctx := context.Background()
	_, _, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)

	u, err := f.svc.Authenticate(ctx, "alice", "password1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = f.svc.Authenticate(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Authenticate(ctx, "nobody", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCurrentDetectsExpiry(t *testing.T) {
	f := newUsersFixture(false)
	past := time.Now().Add(-time.Hour)
	f.users.put(model.User{Username: "alice", SubscriptionStatus: model.SubscriptionTrial, SubscriptionExpireAt: &past})

	u, err := f.svc.Current(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionExpired, u.SubscriptionStatus)
}

func TestApplyIdentityUpserts(t *testing.T) {
	f := newUsersFixture(false)
	ctx := context.Background()

	created, err := f.svc.ApplyIdentity(ctx, &model.User{Username: "alice", PasswordHash: "h1", SubscriptionStatus: model.SubscriptionTrial, WordLimit: 1000})
	require.NoError(t, err)
	assert.True(t, created)

	// usage is owned locally and survives a repeated push
	require.NoError(t, f.svc.ApplyStats(ctx, "alice", 7, model.SubscriptionTrial, nil))
	created, err = f.svc.ApplyIdentity(ctx, &model.User{Username: "alice", PasswordHash: "h2", SubscriptionStatus: model.SubscriptionActive, WordLimit: 5000})
	require.NoError(t, err)
	assert.False(t, created)

	u, _ := f.users.GetByUsername(ctx, "alice")
	assert.Equal(t, "h2", u.PasswordHash)
	assert.Equal(t, 5000, u.WordLimit)
	assert.Equal(t, 7, u.WordCount)

	_, err = f.svc.ApplyIdentity(ctx, &model.User{Username: " "})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestApplyStatsAndConfig(t *testing.T) {
	f := newUsersFixture(false)
	ctx := context.Background()
	f.users.put(model.User{Username: "alice", SubscriptionStatus: model.SubscriptionTrial, PlanName: "trial", WordLimit: 1000, DataServer: "https://eu-1"})

	assert.ErrorIs(t, f.svc.ApplyStats(ctx, "alice", -1, model.SubscriptionTrial, nil), ErrValidation)
	assert.ErrorIs(t, f.svc.ApplyStats(ctx, "ghost", 1, model.SubscriptionTrial, nil), repository.ErrNotFound)
	require.NoError(t, f.svc.ApplyStats(ctx, "alice", 42, model.SubscriptionTrial, nil))

	require.NoError(t, f.svc.ApplyConfig(ctx, &model.User{Username: "alice", SubscriptionStatus: model.SubscriptionActive, PlanName: "pro", WordLimit: 20000}))
	u, _ := f.users.GetByUsername(ctx, "alice")
	assert.Equal(t, 42, u.WordCount)
	assert.Equal(t, "pro", u.PlanName)
	assert.Equal(t, 20000, u.WordLimit)
	// an empty data server in the push keeps the stored one
	assert.Equal(t, "https://eu-1", u.DataServer)

	assert.ErrorIs(t, f.svc.ApplyConfig(ctx, &model.User{Username: "ghost"}), repository.ErrNotFound)
}

type fakeFetcher struct {
	remote map[string]model.User
	calls  []string
}

func (f *fakeFetcher) FetchUser(_ context.Context, target, username string) (*model.User, error) {
	f.calls = append(f.calls, target+"|"+username)
	u, ok := f.remote[username]
	if !ok {
		return nil, errors.New("remote: not found")
	}
	return &u, nil
}

func TestDataNodePullsMissingIdentity(t *testing.T) {
	users := newMemUsers()
	ledger := newLedger(users)
	hash, err := utils.HashPassword("password1", bcrypt.MinCost)
	require.NoError(t, err)
	fetcher := &fakeFetcher{remote: map[string]model.User{
		"alice": {Username: "alice", PasswordHash: hash, SubscriptionStatus: model.SubscriptionTrial, WordLimit: 1000, WordCount: 7},
	}}
	svc := NewUsers(users, nil, ledger, NewSubscriptions(users, nil, ledger, nil, discardLogger()), nil,
		UserOptions{BcryptCost: bcrypt.MinCost}, discardLogger()).WithFetcher(fetcher, "https://auth")
	ctx := context.Background()

	u, err := svc.Authenticate(ctx, "alice", "password1")
	require.NoError(t, err)
	assert.Equal(t, 7, u.WordCount)
	assert.Equal(t, 7, users.count("alice"))
	assert.Equal(t, []string{"https://auth|alice"}, fetcher.calls)

	// stored locally now, no second pull
	_, err = svc.Current(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, fetcher.calls, 1)

	_, err = svc.Authenticate(ctx, "mallory", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Current(ctx, "mallory")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
