package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/vocabulary-sync/internal/config"
	"github.com/iliyamo/vocabulary-sync/internal/metrics"
	"github.com/iliyamo/vocabulary-sync/internal/model"
	"github.com/iliyamo/vocabulary-sync/internal/repository"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testMetrics() *metrics.Metrics { return metrics.New(prometheus.NewRegistry()) }

// memServers is an in-memory DataServerStore.
type memServers struct {
	mu       sync.Mutex
	servers  []model.DataServer
	failFor  map[uint64]bool // RecordHealth fails for these ids
	recorded map[uint64]model.HealthStatus
}

func newMemServers(servers ...model.DataServer) *memServers {
	return &memServers{servers: servers, failFor: map[uint64]bool{}, recorded: map[uint64]model.HealthStatus{}}
}

func (m *memServers) Create(_ context.Context, s *model.DataServer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.servers {
		if x.URL == s.URL {
			return repository.ErrDuplicate
		}
	}
	s.ID = uint64(len(m.servers) + 1)
	m.servers = append(m.servers, *s)
	return nil
}

func (m *memServers) GetByID(_ context.Context, id uint64) (*model.DataServer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.servers {
		if x.ID == id {
			s := x
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memServers) List(context.Context) ([]model.DataServer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.DataServer(nil), m.servers...), nil
}

func (m *memServers) Update(_ context.Context, s *model.DataServer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.servers {
		if m.servers[i].ID == s.ID {
			cur := m.servers[i]
			if cur.URL != s.URL && cur.UserCount > 0 {
				return repository.ErrConflict
			}
			s.UserCount = cur.UserCount
			m.servers[i] = *s
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memServers) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.servers {
		if m.servers[i].ID != id {
			continue
		}
		if m.servers[i].UserCount > 0 {
			return repository.ErrConflict
		}
		m.servers = append(m.servers[:i], m.servers[i+1:]...)
		return nil
	}
	return repository.ErrNotFound
}

func (m *memServers) adjust(url string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.servers {
		if m.servers[i].URL == url {
			m.servers[i].UserCount = max(m.servers[i].UserCount+delta, 0)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memServers) IncrementUsers(_ context.Context, url string) error { return m.adjust(url, 1) }
func (m *memServers) DecrementUsers(_ context.Context, url string) error { return m.adjust(url, -1) }

func (m *memServers) RecordHealth(_ context.Context, id uint64, status model.HealthStatus, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[id] {
		return errors.New("db unavailable")
	}
	m.recorded[id] = status
	return nil
}

// memUsers is an in-memory UserStore, WordCounter and SubscriptionStore.
type memUsers struct {
	mu     sync.Mutex
	byName map[string]*model.User
	nextID int64
}

func newMemUsers() *memUsers { return &memUsers{byName: map[string]*model.User{}} }

func (m *memUsers) put(u model.User) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	m.byName[u.Username] = &u
	cp := u
	return &cp
}

func (m *memUsers) byID(id int64) *model.User {
	for _, u := range m.byName {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[u.Username]; ok {
		return repository.ErrDuplicate
	}
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.byName[u.Username] = &cp
	return nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byName[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) Upsert(_ context.Context, u *model.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byName[u.Username]; ok {
		id, count := cur.ID, cur.WordCount
		*cur = *u
		cur.ID, cur.WordCount = id, count
		return false, nil
	}
	m.nextID++
	cp := *u
	cp.ID = m.nextID
	m.byName[u.Username] = &cp
	return true, nil
}

func (m *memUsers) UpdateStats(_ context.Context, username string, wordCount int, status model.SubscriptionStatus, expireAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byName[username]
	if !ok {
		return repository.ErrNotFound
	}
	u.WordCount, u.SubscriptionStatus, u.SubscriptionExpireAt = wordCount, status, expireAt
	return nil
}

func (m *memUsers) UpdateSubscription(_ context.Context, in *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byName[in.Username]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsSelfHosted = in.IsSelfHosted
	u.SubscriptionStatus = in.SubscriptionStatus
	u.SubscriptionExpireAt = in.SubscriptionExpireAt
	u.External = in.External
	u.PlanName = in.PlanName
	u.WordLimit = in.WordLimit
	u.DataServer = in.DataServer
	return nil
}

func (m *memUsers) SetStatus(_ context.Context, id int64, status model.SubscriptionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID(id)
	if u == nil {
		return repository.ErrNotFound
	}
	u.SubscriptionStatus = status
	return nil
}

func (m *memUsers) SetDataServer(_ context.Context, id int64, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID(id)
	if u == nil {
		return false, repository.ErrNotFound
	}
	if u.DataServer != "" {
		return false, nil
	}
	u.DataServer = url
	return true, nil
}

func (m *memUsers) AdjustWordCount(_ context.Context, id int64, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID(id)
	if u == nil {
		return 0, repository.ErrNotFound
	}
	u.WordCount = max(u.WordCount+delta, 0)
	return u.WordCount, nil
}

func (m *memUsers) count(username string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byName[username].WordCount
}

// memVocab is an in-memory VocabStore keyed by owner and record key.
type memVocab[T any] struct {
	mu    sync.Mutex
	key   func(*T) string
	owner func(*T) int64
	clone func(T) T
	data  map[int64]map[string]T
	// failInsertAt makes InsertMany fail on its n-th call (1-based)
	failInsertAt int
	insertCalls  int
}

func newWordStore() *memVocab[model.Word] {
	return &memVocab[model.Word]{
		key:   func(w *model.Word) string { return w.Word },
		owner: func(w *model.Word) int64 { return w.UserID },
		clone: model.Word.Clone,
		data:  map[int64]map[string]model.Word{},
	}
}

func newPhraseStore() *memVocab[model.Phrase] {
	return &memVocab[model.Phrase]{
		key:   func(p *model.Phrase) string { return p.Word },
		owner: func(p *model.Phrase) int64 { return p.UserID },
		clone: model.Phrase.Clone,
		data:  map[int64]map[string]model.Phrase{},
	}
}

func (m *memVocab[T]) bucket(userID int64) map[string]T {
	b, ok := m.data[userID]
	if !ok {
		b = map[string]T{}
		m.data[userID] = b
	}
	return b
}

func (m *memVocab[T]) Get(_ context.Context, userID int64, key string) (*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.bucket(userID)[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := m.clone(rec)
	return &cp, nil
}

func (m *memVocab[T]) FindByKeys(_ context.Context, userID int64, keys []string) (map[string]*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]*T{}
	for _, k := range keys {
		if rec, ok := m.bucket(userID)[k]; ok {
			cp := m.clone(rec)
			out[k] = &cp
		}
	}
	return out, nil
}

func (m *memVocab[T]) List(_ context.Context, userID int64, limit, offset int64) ([]*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0)
	for k := range m.bucket(userID) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := []*T{}
	for i, k := range keys {
		if int64(i) < offset || (limit > 0 && int64(len(out)) >= limit) {
			continue
		}
		cp := m.clone(m.bucket(userID)[k])
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memVocab[T]) Create(_ context.Context, rec *T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(m.owner(rec))
	if _, ok := b[m.key(rec)]; ok {
		return repository.ErrDuplicate
	}
	b[m.key(rec)] = m.clone(*rec)
	return nil
}

func (m *memVocab[T]) Replace(_ context.Context, userID int64, rec *T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(userID)
	if _, ok := b[m.key(rec)]; !ok {
		return repository.ErrNotFound
	}
	b[m.key(rec)] = m.clone(*rec)
	return nil
}

func (m *memVocab[T]) Delete(_ context.Context, userID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(userID)
	if _, ok := b[key]; !ok {
		return repository.ErrNotFound
	}
	delete(b, key)
	return nil
}

func (m *memVocab[T]) DeleteAll(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.bucket(userID))
	delete(m.data, userID)
	return n, nil
}

func (m *memVocab[T]) InsertMany(_ context.Context, recs []*T) (repository.InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if m.failInsertAt == m.insertCalls {
		return repository.InsertResult{}, errors.New("bulk write failed")
	}
	var res repository.InsertResult
	for _, rec := range recs {
		b := m.bucket(m.owner(rec))
		if _, ok := b[m.key(rec)]; ok {
			res.Skipped++
			continue
		}
		b[m.key(rec)] = m.clone(*rec)
		res.Inserted++
	}
	return res, nil
}

func (m *memVocab[T]) Count(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data[userID])), nil
}

func (m *memVocab[T]) size(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[userID])
}

type fakeStats struct {
	err   error
	calls int
	last  int
}

func (f *fakeStats) PushUserStats(_ context.Context, u *model.User) error {
	f.calls++
	f.last = u.WordCount
	return f.err
}

type fakeIdentity struct {
	err     error
	targets []string
}

func (f *fakeIdentity) PushUser(_ context.Context, target string, _ *model.User) error {
	f.targets = append(f.targets, target)
	return f.err
}

type fakeConfig struct {
	err   error
	users []model.User
}

func (f *fakeConfig) PushUserConfig(_ context.Context, _ string, u *model.User) error {
	f.users = append(f.users, *u)
	return f.err
}

type fakeVerifier struct {
	v   Verification
	err error
}

func (f fakeVerifier) Verify(context.Context, string, string) (Verification, error) { return f.v, f.err }

func newLedger(users *memUsers) *QuotaLedger {
	return NewQuotaLedger(config.DefaultPlans(), users, testMetrics())
}
