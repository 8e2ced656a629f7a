package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/vocabulary-sync/internal/metrics"
	"github.com/iliyamo/vocabulary-sync/internal/model"
	"github.com/iliyamo/vocabulary-sync/internal/repository"
)

// DataServerStore is the persistence the registry relies on.
type DataServerStore interface {
	Create(ctx context.Context, s *model.DataServer) error
	GetByID(ctx context.Context, id uint64) (*model.DataServer, error)
	List(ctx context.Context) ([]model.DataServer, error)
	Update(ctx context.Context, s *model.DataServer) error
	Delete(ctx context.Context, id uint64) error
	IncrementUsers(ctx context.Context, url string) error
	DecrementUsers(ctx context.Context, url string) error
	RecordHealth(ctx context.Context, id uint64, status model.HealthStatus, at time.Time) error
}

// Registry is the directory of data servers and picks one for new users.
type Registry struct {
	store   DataServerStore
	prober  *HealthProber
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
	// onChange runs after admin writes, e.g. to purge the public list cache.
	onChange func(ctx context.Context)
}

// NewRegistry wires the registry.  onChange may be nil.
func NewRegistry(store DataServerStore, prober *HealthProber, m *metrics.Metrics, log *slog.Logger, onChange func(context.Context)) *Registry {
	return &Registry{store: store, prober: prober, metrics: m, log: log, now: time.Now, onChange: onChange}
}

// Eligible filters servers down to those that are available, active and
// below capacity, ordered by priority descending with lower id first on
// ties.  Health status plays no part.
func Eligible(servers []model.DataServer) []model.DataServer {
	out := make([]model.DataServer, 0, len(servers))
	for _, s := range servers {
		if s.Available && s.Status == model.ServerActive && s.HasCapacity() {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListEligible returns the servers a new user may be placed on.
func (r *Registry) ListEligible(ctx context.Context) ([]model.DataServer, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return Eligible(all), nil
}

// Assign picks the best eligible server.  It returns nil without error when
// none qualifies; the caller leaves the user unassigned.
func (r *Registry) Assign(ctx context.Context) (*model.DataServer, error) {
	eligible, err := r.ListEligible(ctx)
	if err != nil {
		r.metrics.Assignments.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(eligible) == 0 {
		r.metrics.Assignments.WithLabelValues("unassigned").Inc()
		return nil, nil
	}
	r.metrics.Assignments.WithLabelValues("assigned").Inc()
	s := eligible[0]
	return &s, nil
}

// IncrementUsers records one more user on the server at url.
func (r *Registry) IncrementUsers(ctx context.Context, url string) error {
	return r.store.IncrementUsers(ctx, url)
}

// DecrementUsers records one user leaving the server at url.
func (r *Registry) DecrementUsers(ctx context.Context, url string) error {
	return r.store.DecrementUsers(ctx, url)
}

// List returns every registered server.
func (r *Registry) List(ctx context.Context) ([]model.DataServer, error) {
	return r.store.List(ctx)
}

// Get returns a single server.
func (r *Registry) Get(ctx context.Context, id uint64) (*model.DataServer, error) {
	return r.store.GetByID(ctx, id)
}

// PublicList exposes the servers a client may see: available and active.
func (r *Registry) PublicList(ctx context.Context) ([]model.PublicDataServer, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.PublicDataServer{}
	for _, s := range all {
		if s.Available && s.Status == model.ServerActive {
			out = append(out, model.PublicDataServer{URL: s.URL, Name: s.Name, Location: s.Location})
		}
	}
	return out, nil
}

// Create validates and stores a new server.
func (r *Registry) Create(ctx context.Context, s *model.DataServer) error {
	if err := normalizeServer(s); err != nil {
		return err
	}
	if err := r.store.Create(ctx, s); err != nil {
		return err
	}
	r.changed(ctx)
	return nil
}

// Update validates and rewrites the operator-managed fields of a server.
func (r *Registry) Update(ctx context.Context, s *model.DataServer) error {
	if err := normalizeServer(s); err != nil {
		return err
	}
	cur, err := r.store.GetByID(ctx, s.ID)
	if err != nil {
		return err
	}
	// assigned users keep pointing at the old url
	if cur.URL != s.URL && cur.UserCount > 0 {
		return fmt.Errorf("server %d still has %d users: %w", s.ID, cur.UserCount, repository.ErrConflict)
	}
	if err := r.store.Update(ctx, s); err != nil {
		return err
	}
	r.changed(ctx)
	return nil
}

// Delete removes a server that has no users left.
func (r *Registry) Delete(ctx context.Context, id uint64) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.changed(ctx)
	return nil
}

func (r *Registry) changed(ctx context.Context) {
	if r.onChange != nil {
		r.onChange(ctx)
	}
}

// HealthCheck probes one server and stores the result.
func (r *Registry) HealthCheck(ctx context.Context, id uint64) (*model.DataServer, error) {
	s, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.check(ctx, s)
	return s, nil
}

// HealthCheckAll probes every server in parallel.  One server failing, or
// failing to record, never affects the others.
func (r *Registry) HealthCheckAll(ctx context.Context) ([]model.DataServer, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var wg sync.WaitGroup
	for i := range all {
		wg.Add(1)
		go func(s *model.DataServer) {
			defer wg.Done()
			r.check(ctx, s)
		}(&all[i])
	}
	wg.Wait()
	return all, nil
}

func (r *Registry) check(ctx context.Context, s *model.DataServer) {
	status := r.prober.Probe(ctx, s.URL)
	at := r.now().UTC()
	s.HealthStatus = status
	s.LastHealthCheck = &at
	r.metrics.HealthChecks.WithLabelValues(string(status)).Inc()
	if err := r.store.RecordHealth(ctx, s.ID, status, at); err != nil {
		r.log.Warn("record health failed", slog.String("server", s.URL), slog.Any("error", err))
	}
	if status != model.HealthHealthy {
		r.log.Info("data server unhealthy", slog.String("server", s.URL))
	}
}

func normalizeServer(s *model.DataServer) error {
	s.URL = strings.TrimRight(strings.TrimSpace(s.URL), "/")
	s.Name = strings.TrimSpace(s.Name)
	s.Location = strings.TrimSpace(s.Location)
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validationf("url must be an absolute http(s) URL")
	}
	if s.Name == "" {
		return validationf("name is required")
	}
	if s.Status == "" {
		s.Status = model.ServerActive
	}
	if !s.Status.Valid() {
		return validationf("status must be active, inactive or maintenance")
	}
	if s.MaxUsers < 1 {
		return validationf("maxUsers must be positive")
	}
	return nil
}
