package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iliyamo/vocabulary-sync/internal/metrics"
	"github.com/iliyamo/vocabulary-sync/internal/model"
	"github.com/iliyamo/vocabulary-sync/internal/repository"
)

// Batch sync modes.
const (
	ModeMerge   = "merge"
	ModeReplace = "replace"
)

// Per-record outcomes.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionSkipped = "skipped"
	ActionDeleted = "deleted"
)

// VocabStore is the storage contract for one vocabulary kind.
type VocabStore[T any] interface {
	Get(ctx context.Context, userID int64, key string) (*T, error)
	FindByKeys(ctx context.Context, userID int64, keys []string) (map[string]*T, error)
	List(ctx context.Context, userID int64, limit, offset int64) ([]*T, error)
	Create(ctx context.Context, rec *T) error
	Replace(ctx context.Context, userID int64, rec *T) error
	Delete(ctx context.Context, userID int64, key string) error
	DeleteAll(ctx context.Context, userID int64) (int, error)
	InsertMany(ctx context.Context, recs []*T) (repository.InsertResult, error)
	Count(ctx context.Context, userID int64) (int64, error)
}

// StatsPusher sends the user's usage snapshot to the authoritative node.
type StatsPusher interface {
	PushUserStats(ctx context.Context, u *model.User) error
}

// kindRules adapts the engine to one record type.
type kindRules[T any] struct {
	name     string
	key      func(*T) string
	setKey   func(*T, string)
	merge    func(existing, incoming T) (T, bool)
	validate func(*T) error
	// prepare fills owner, defaults and timestamps on a record about to be created.
	prepare func(rec *T, userID int64, now time.Time)
	// touch refreshes derived fields on a record about to be rewritten.
	touch func(rec *T, now time.Time)
}

// Outcome describes a single-record operation.
type Outcome[T any] struct {
	Action      string `json:"action"`
	Record      *T     `json:"record,omitempty"`
	WordCount   int    `json:"wordCount"`
	SyncWarning string `json:"syncWarning,omitempty"`
}

// BatchRequest is one batch-sync call.  In replace mode ClearFirst is set
// only on the first chunk of a multi-request upload.
type BatchRequest[T any] struct {
	Items      []T
	Mode       string
	ClearFirst bool
}

// BatchResult summarizes a batch sync.
type BatchResult struct {
	Mode        string `json:"mode"`
	Created     int    `json:"created"`
	Updated     int    `json:"updated"`
	Skipped     int    `json:"skipped"`
	Deleted     int    `json:"deleted"`
	WordCount   int    `json:"wordCount"`
	SyncWarning string `json:"syncWarning,omitempty"`
}

// Vocabulary runs creation, merge and replace flows for one record kind.
type Vocabulary[T any] struct {
	store     VocabStore[T]
	rules     kindRules[T]
	ledger    *QuotaLedger
	stats     StatsPusher
	chunkSize int
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
}

func newVocabulary[T any](store VocabStore[T], rules kindRules[T], ledger *QuotaLedger, stats StatsPusher,
	chunkSize int, m *metrics.Metrics, log *slog.Logger) *Vocabulary[T] {
	if chunkSize < 1 {
		chunkSize = 500
	}
	return &Vocabulary[T]{
		store: store, rules: rules, ledger: ledger, stats: stats, chunkSize: chunkSize,
		metrics: m, log: log.With(slog.String("kind", rules.name)), now: time.Now,
	}
}

func (v *Vocabulary[T]) normalize(rec *T) error {
	v.rules.setKey(rec, model.NormalizeKey(v.rules.key(rec)))
	if v.rules.key(rec) == "" {
		return validationf("%s is required", v.rules.name)
	}
	if v.rules.validate != nil {
		return v.rules.validate(rec)
	}
	return nil
}

// Get returns one record of the user.
func (v *Vocabulary[T]) Get(ctx context.Context, u *model.User, key string) (*T, error) {
	return v.store.Get(ctx, u.ID, model.NormalizeKey(key))
}

// List pages through the user's records.
func (v *Vocabulary[T]) List(ctx context.Context, u *model.User, limit, offset int64) ([]*T, error) {
	return v.store.List(ctx, u.ID, limit, offset)
}

// BatchGet returns the records for the requested keys that exist.
func (v *Vocabulary[T]) BatchGet(ctx context.Context, u *model.User, keys []string) ([]*T, error) {
	norm := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = model.NormalizeKey(k); k != "" {
			norm = append(norm, k)
		}
	}
	found, err := v.store.FindByKeys(ctx, u.ID, dedupe(norm))
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(found))
	for _, k := range dedupe(norm) {
		if rec, ok := found[k]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Upsert creates the record or merges it into the stored one.
func (v *Vocabulary[T]) Upsert(ctx context.Context, u *model.User, rec T) (Outcome[T], error) {
	if err := v.normalize(&rec); err != nil {
		return Outcome[T]{}, err
	}
	now := v.now().UTC()
	existing, err := v.store.Get(ctx, u.ID, v.rules.key(&rec))
	switch {
	case err == nil:
		merged, changed := v.rules.merge(*existing, rec)
		if !changed {
			return Outcome[T]{Action: ActionSkipped, Record: existing, WordCount: u.WordCount}, nil
		}
		v.rules.touch(&merged, now)
		if err := v.store.Replace(ctx, u.ID, &merged); err != nil {
			return Outcome[T]{}, err
		}
		return Outcome[T]{Action: ActionUpdated, Record: &merged, WordCount: u.WordCount}, nil
	case errors.Is(err, repository.ErrNotFound):
	default:
		return Outcome[T]{}, err
	}

	if err := v.ledger.Admit(u, u.WordCount, 1, v.rules.name); err != nil {
		return Outcome[T]{}, err
	}
	v.rules.prepare(&rec, u.ID, now)
	if err := v.store.Create(ctx, &rec); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// created concurrently by another request
			return Outcome[T]{Action: ActionSkipped, Record: &rec, WordCount: u.WordCount}, nil
		}
		return Outcome[T]{}, err
	}
	if err := v.ledger.Record(ctx, u, 1); err != nil {
		return Outcome[T]{}, err
	}
	return Outcome[T]{Action: ActionCreated, Record: &rec, WordCount: u.WordCount, SyncWarning: v.pushStats(ctx, u)}, nil
}

// Update applies a direct edit to a stored record.
func (v *Vocabulary[T]) Update(ctx context.Context, u *model.User, key string, apply func(rec *T, now time.Time) error) (Outcome[T], error) {
	existing, err := v.store.Get(ctx, u.ID, model.NormalizeKey(key))
	if err != nil {
		return Outcome[T]{}, err
	}
	now := v.now().UTC()
	if err := apply(existing, now); err != nil {
		return Outcome[T]{}, err
	}
	v.rules.touch(existing, now)
	if err := v.store.Replace(ctx, u.ID, existing); err != nil {
		return Outcome[T]{}, err
	}
	return Outcome[T]{Action: ActionUpdated, Record: existing, WordCount: u.WordCount}, nil
}

// Delete removes one record and releases its quota.
func (v *Vocabulary[T]) Delete(ctx context.Context, u *model.User, key string) (Outcome[T], error) {
	if err := v.store.Delete(ctx, u.ID, model.NormalizeKey(key)); err != nil {
		return Outcome[T]{}, err
	}
	if err := v.ledger.Record(ctx, u, -1); err != nil {
		return Outcome[T]{}, err
	}
	return Outcome[T]{Action: ActionDeleted, WordCount: u.WordCount, SyncWarning: v.pushStats(ctx, u)}, nil
}

// BatchSync reconciles a batch in merge or replace mode.  Admission runs
// before any write; a rejected batch leaves storage and counts untouched.
func (v *Vocabulary[T]) BatchSync(ctx context.Context, u *model.User, req BatchRequest[T]) (BatchResult, error) {
	for i := range req.Items {
		if err := v.normalize(&req.Items[i]); err != nil {
			return BatchResult{}, validationf("item %d: %v", i, err)
		}
	}
	var (
		res BatchResult
		err error
	)
	switch req.Mode {
	case ModeReplace:
		res, err = v.replace(ctx, u, req.Items, req.ClearFirst)
	case ModeMerge, "":
		res, err = v.merge(ctx, u, req.Items)
	default:
		return BatchResult{}, validationf("mode must be merge or replace")
	}
	res.WordCount = u.WordCount
	v.count(res)
	// a partially applied batch still changed the count
	if res.Created > 0 || res.Deleted > 0 {
		res.SyncWarning = v.pushStats(ctx, u)
	}
	return res, err
}

func (v *Vocabulary[T]) replace(ctx context.Context, u *model.User, items []T, clearFirst bool) (BatchResult, error) {
	res := BatchResult{Mode: ModeReplace}
	current := u.WordCount
	if clearFirst {
		// only this kind is cleared; the other kind keeps its share of the count
		own, err := v.store.Count(ctx, u.ID)
		if err != nil {
			return res, err
		}
		current = max(u.WordCount-int(own), 0)
	}
	if err := v.ledger.Admit(u, current, len(items), v.rules.name); err != nil {
		return res, err
	}

	if clearFirst {
		n, err := v.store.DeleteAll(ctx, u.ID)
		if err != nil {
			return res, err
		}
		res.Deleted = n
	}

	now := v.now().UTC()
	var insertErr error
	for start := 0; start < len(items); start += v.chunkSize {
		end := min(start+v.chunkSize, len(items))
		chunk := make([]*T, 0, end-start)
		for i := start; i < end; i++ {
			rec := items[i]
			v.rules.prepare(&rec, u.ID, now)
			chunk = append(chunk, &rec)
		}
		ins, err := v.store.InsertMany(ctx, chunk)
		res.Created += ins.Inserted
		res.Skipped += ins.Skipped
		if err != nil {
			insertErr = err
			break
		}
	}
	// one adjustment for the whole call, even after a partial failure
	if err := v.ledger.Record(ctx, u, res.Created-res.Deleted); err != nil {
		return res, err
	}
	return res, insertErr
}

func (v *Vocabulary[T]) merge(ctx context.Context, u *model.User, items []T) (BatchResult, error) {
	res := BatchResult{Mode: ModeMerge}

	// collapse repeated keys inside the batch, keeping first-seen order
	order := make([]string, 0, len(items))
	incoming := make(map[string]T, len(items))
	for _, rec := range items {
		k := v.rules.key(&rec)
		if prev, ok := incoming[k]; ok {
			merged, _ := v.rules.merge(prev, rec)
			incoming[k] = merged
			res.Skipped++
			continue
		}
		order = append(order, k)
		incoming[k] = rec
	}

	existing, err := v.store.FindByKeys(ctx, u.ID, order)
	if err != nil {
		return res, err
	}
	fresh := 0
	for _, k := range order {
		if _, ok := existing[k]; !ok {
			fresh++
		}
	}
	if fresh > 0 {
		if err := v.ledger.Admit(u, u.WordCount, fresh, v.rules.name); err != nil {
			return res, err
		}
	}

	now := v.now().UTC()
	var writeErr error
	for _, k := range order {
		rec := incoming[k]
		if ex, ok := existing[k]; ok {
			merged, changed := v.rules.merge(*ex, rec)
			if !changed {
				res.Skipped++
				continue
			}
			v.rules.touch(&merged, now)
			if writeErr = v.store.Replace(ctx, u.ID, &merged); writeErr != nil {
				break
			}
			res.Updated++
			continue
		}
		v.rules.prepare(&rec, u.ID, now)
		if err := v.store.Create(ctx, &rec); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				res.Skipped++
				continue
			}
			writeErr = err
			break
		}
		res.Created++
	}
	if err := v.ledger.Record(ctx, u, res.Created); err != nil {
		return res, err
	}
	return res, writeErr
}

func (v *Vocabulary[T]) count(res BatchResult) {
	for outcome, n := range map[string]int{
		ActionCreated: res.Created,
		ActionUpdated: res.Updated,
		ActionSkipped: res.Skipped,
		ActionDeleted: res.Deleted,
	} {
		if n > 0 {
			v.metrics.BatchRecords.WithLabelValues(v.rules.name, res.Mode, outcome).Add(float64(n))
		}
	}
}

// pushStats never fails the caller; a failed push becomes a warning.
func (v *Vocabulary[T]) pushStats(ctx context.Context, u *model.User) string {
	if v.stats == nil {
		return ""
	}
	if err := v.stats.PushUserStats(ctx, u); err != nil {
		v.log.Warn("stats sync failed", slog.String("user", u.Username), slog.Any("error", err))
		return "usage stats not synced to authoritative server: " + err.Error()
	}
	return ""
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
