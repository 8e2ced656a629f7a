package service

import (
	"context"

	"github.com/iliyamo/vocabulary-sync/internal/config"
	"github.com/iliyamo/vocabulary-sync/internal/metrics"
	"github.com/iliyamo/vocabulary-sync/internal/model"
)

// WordCounter adjusts the denormalized vocabulary count of a user.
type WordCounter interface {
	AdjustWordCount(ctx context.Context, id int64, delta int) (int, error)
}

// QuotaLedger is the admission control in front of every creation path.
//
// Admit and Record are separate calls with no lock between them, so two
// concurrent batches for one user may each pass admission and together
// overshoot the limit.  Record itself is an atomic increment, so the count
// stays exact even then.
type QuotaLedger struct {
	plans   config.PlanTable
	counter WordCounter
	metrics *metrics.Metrics
}

// NewQuotaLedger builds a ledger over the plan table.
func NewQuotaLedger(plans config.PlanTable, counter WordCounter, m *metrics.Metrics) *QuotaLedger {
	return &QuotaLedger{plans: plans, counter: counter, metrics: m}
}

// LimitFor resolves the word limit a user is entitled to.
func (l *QuotaLedger) LimitFor(u *model.User) int {
	if u.IsSelfHosted {
		return l.plans.SelfHostedLimit
	}
	return l.plans.LimitFor(u.PlanName)
}

// limit prefers the stored limit, which was resolved at subscription time.
func (l *QuotaLedger) limit(u *model.User) int {
	if u.WordLimit > 0 {
		return u.WordLimit
	}
	return l.LimitFor(u)
}

// Admit checks that current+requested fits in the user's limit.  kind labels
// the rejection metric.
func (l *QuotaLedger) Admit(u *model.User, current, requested int, kind string) error {
	limit := l.limit(u)
	if current+requested > limit {
		l.metrics.QuotaRejections.WithLabelValues(kind).Inc()
		return &QuotaError{Current: current, Limit: limit, Requested: requested}
	}
	return nil
}

// Record applies delta to the user's count and refreshes u.WordCount.
func (l *QuotaLedger) Record(ctx context.Context, u *model.User, delta int) error {
	if delta == 0 {
		return nil
	}
	n, err := l.counter.AdjustWordCount(ctx, u.ID, delta)
	if err != nil {
		return err
	}
	u.WordCount = n
	return nil
}
