package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vocabulary-sync/internal/config"
	"github.com/iliyamo/vocabulary-sync/internal/metrics"
	"github.com/iliyamo/vocabulary-sync/internal/middleware"
	"github.com/iliyamo/vocabulary-sync/internal/model"
	"github.com/iliyamo/vocabulary-sync/internal/repository"
	"github.com/iliyamo/vocabulary-sync/internal/service"
	"github.com/iliyamo/vocabulary-sync/internal/syncer"
	"github.com/iliyamo/vocabulary-sync/internal/trust"
)

// userTable is a minimal service.UserStore keyed by username.
type userTable map[string]*model.User

func (t userTable) Create(_ context.Context, u *model.User) error {
	if _, ok := t[u.Username]; ok {
		return repository.ErrDuplicate
	}
	u.ID = int64(len(t) + 1)
	cp := *u
	t[u.Username] = &cp
	return nil
}

func (t userTable) GetByUsername(_ context.Context, name string) (*model.User, error) {
	u, ok := t[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (t userTable) Upsert(ctx context.Context, u *model.User) (bool, error) {
	cur, ok := t[u.Username]
	if !ok {
		return true, t.Create(ctx, u)
	}
	id, count := cur.ID, cur.WordCount
	*cur = *u
	cur.ID, cur.WordCount = id, count
	return false, nil
}

func (t userTable) UpdateStats(_ context.Context, name string, n int, st model.SubscriptionStatus, exp *time.Time) error {
	u, ok := t[name]
	if !ok {
		return repository.ErrNotFound
	}
	u.WordCount, u.SubscriptionStatus, u.SubscriptionExpireAt = n, st, exp
	return nil
}

func (t userTable) UpdateSubscription(_ context.Context, in *model.User) error {
	u, ok := t[in.Username]
	if !ok {
		return repository.ErrNotFound
	}
	u.SubscriptionStatus, u.PlanName, u.WordLimit = in.SubscriptionStatus, in.PlanName, in.WordLimit
	return nil
}

func (t userTable) SetDataServer(context.Context, int64, string) (bool, error) { return true, nil }

const syncSecret = "fleet-secret"

func newSyncEcho(t *testing.T, users userTable) *echo.Echo {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	svc := service.NewUsers(users, nil, service.NewQuotaLedger(config.DefaultPlans(), nil, m), nil, nil,
		service.UserOptions{BcryptCost: 4}, log)
	v, err := NewValidator()
	require.NoError(t, err)

	e := echo.New()
	e.Validator = v
	h := NewServerSyncHandler(svc, log)
	g := e.Group("/server-sync", middleware.ServerTrust(trust.NewSigner(syncSecret), m, log))
	g.POST("/sync-user", h.SyncUser)
	g.POST("/sync-user-stats", h.SyncUserStats)
	g.POST("/sync-user-config", h.SyncUserConfig)
	g.GET("/user/:username", h.GetUser)
	return e
}

func signed(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	h, err := trust.NewSigner(syncSecret).SignNow(method, path, "auth-1", []byte(body))
	require.NoError(t, err)
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(trust.HeaderSignature, h.Signature)
	req.Header.Set(trust.HeaderTimestamp, h.Timestamp)
	req.Header.Set(trust.HeaderServerID, h.ServerID)
	return req
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSyncUserCreatesThenUpdates(t *testing.T) {
	users := userTable{}
	e := newSyncEcho(t, users)

	body := `{"username":"alice","email":"a@x.org","passwordHash":"h1","subscriptionStatus":"trial","planName":"trial","wordLimit":1000,"dataServer":"https://eu-1"}`
	rec := serve(e, signed(t, http.MethodPost, syncer.PathSyncUser, body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"ok":true,"created":true}`, rec.Body.String())
	assert.Equal(t, "h1", users["alice"].PasswordHash)

	users["alice"].WordCount = 12
	body = strings.Replace(body, `"h1"`, `"h2"`, 1)
	rec = serve(e, signed(t, http.MethodPost, syncer.PathSyncUser, body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"created":false}`, rec.Body.String())
	assert.Equal(t, "h2", users["alice"].PasswordHash)
	assert.Equal(t, 12, users["alice"].WordCount)
}

func TestSyncUserRejectsInvalidPayload(t *testing.T) {
	e := newSyncEcho(t, userTable{})

	rec := serve(e, signed(t, http.MethodPost, syncer.PathSyncUser, `{"username":"alice","subscriptionStatus":"gold"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "subscriptionStatus")
}

func TestSyncUserUnsignedIsRejected(t *testing.T) {
	users := userTable{}
	e := newSyncEcho(t, users)

	req := httptest.NewRequest(http.MethodPost, syncer.PathSyncUser, strings.NewReader(`{"username":"mallory"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := serve(e, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, users)
}

func TestSyncUserStats(t *testing.T) {
	users := userTable{"alice": {ID: 1, Username: "alice", SubscriptionStatus: model.SubscriptionTrial}}
	e := newSyncEcho(t, users)

	rec := serve(e, signed(t, http.MethodPost, syncer.PathSyncUserStats, `{"username":"alice","wordCount":42,"subscriptionStatus":"trial"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 42, users["alice"].WordCount)

	rec = serve(e, signed(t, http.MethodPost, syncer.PathSyncUserStats, `{"username":"ghost","wordCount":1,"subscriptionStatus":"trial"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(e, signed(t, http.MethodPost, syncer.PathSyncUserStats, `{"username":"alice","wordCount":-1,"subscriptionStatus":"trial"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncUserConfig(t *testing.T) {
	users := userTable{"alice": {ID: 1, Username: "alice", SubscriptionStatus: model.SubscriptionTrial, WordLimit: 1000}}
	e := newSyncEcho(t, users)

	rec := serve(e, signed(t, http.MethodPost, syncer.PathSyncUserConfig,
		`{"username":"alice","subscriptionStatus":"active","planName":"pro","wordLimit":20000}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.SubscriptionActive, users["alice"].SubscriptionStatus)
	assert.Equal(t, 20000, users["alice"].WordLimit)
}

func TestGetUserSnapshot(t *testing.T) {
	users := userTable{"alice": {ID: 1, Username: "alice", PasswordHash: "h", SubscriptionStatus: model.SubscriptionActive, WordLimit: 5000}}
	e := newSyncEcho(t, users)

	rec := serve(e, signed(t, http.MethodGet, syncer.PathFetchUser+"alice", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var p syncer.UserPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "h", p.PasswordHash)
	assert.Equal(t, 5000, p.WordLimit)

	rec = serve(e, signed(t, http.MethodGet, syncer.PathFetchUser+"ghost", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaleSignatureRejected(t *testing.T) {
	e := newSyncEcho(t, userTable{})
	body := `{"username":"alice","subscriptionStatus":"trial"}`
	ts := time.Now().Add(-301 * time.Second).UnixMilli()
	sig, err := trust.NewSigner(syncSecret).Sign(http.MethodPost, syncer.PathSyncUser, ts, []byte(body))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, syncer.PathSyncUser, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(trust.HeaderSignature, sig)
	req.Header.Set(trust.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(trust.HeaderServerID, "auth-1")
	rec := serve(e, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), trust.ErrStaleTimestamp.Error())
}
