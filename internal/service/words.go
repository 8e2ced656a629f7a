package service

import (
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/vocabulary-sync/internal/merge"
	"github.com/iliyamo/vocabulary-sync/internal/metrics"
	"github.com/iliyamo/vocabulary-sync/internal/model"
)

// WordService is the vocabulary engine specialised for words.
type WordService = Vocabulary[model.Word]

// NewWordService wires the engine with the word rules.
func NewWordService(store VocabStore[model.Word], ledger *QuotaLedger, stats StatsPusher, chunkSize int, m *metrics.Metrics, log *slog.Logger) *WordService {
	return newVocabulary(store, kindRules[model.Word]{
		name:     "word",
		key:      func(w *model.Word) string { return w.Word },
		setKey:   func(w *model.Word, k string) { w.Word = k },
		merge:    merge.Word,
		validate: validateWord,
		prepare:  prepareWord,
		touch:    touchWord,
	}, ledger, stats, chunkSize, m, log)
}

func validateWord(w *model.Word) error {
	if w.Status != nil && !model.ValidStage(*w.Status) {
		return validationf("status must be between 0 and %d", model.MaxStage)
	}
	for k := range w.StatusHistory {
		if !isStageKey(k) {
			return validationf("statusHistory key %q is not a stage", k)
		}
	}
	return nil
}

func isStageKey(k string) bool {
	for s := 0; s <= model.MaxStage; s++ {
		if model.StageKey(s) == k {
			return true
		}
	}
	return false
}

func prepareWord(w *model.Word, userID int64, now time.Time) {
	w.UserID = userID
	if w.Term == "" {
		w.Term = w.Word
	}
	if w.Status == nil {
		w.Status = model.IntPtr(0)
	}
	w.Translations = trimAll(w.Translations)
	w.Tags = trimAll(w.Tags)
	if w.Sentences == nil {
		w.Sentences = []model.Sentence{}
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	stampCurrentStage(w, now)
	w.ProjectHistory()
}

func touchWord(w *model.Word, now time.Time) {
	w.UpdatedAt = now
	stampCurrentStage(w, now)
	w.ProjectHistory()
}

// stampCurrentStage records the arrival time of the current stage when the
// history has no entry for it yet.
func stampCurrentStage(w *model.Word, now time.Time) {
	key := model.StageKey(w.StatusValue())
	if _, ok := w.StatusHistory[key]; !ok {
		w.StampStage(w.StatusValue(), now.UnixMilli())
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if _, dup := seen[s]; dup || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// WordPatch is a direct edit; nil fields are left alone.
type WordPatch struct {
	Term         *string
	Translations *[]string
	Tags         *[]string
	Sentences    *[]model.Sentence
	Status       *int
	Language     *string
	IsCustom     *bool
}

// Apply overwrites the provided fields.  A status change stamps the stage:
// first arrival sets its create time, every change refreshes its update time.
func (p WordPatch) Apply(w *model.Word, now time.Time) error {
	if p.Status != nil && !model.ValidStage(*p.Status) {
		return validationf("status must be between 0 and %d", model.MaxStage)
	}
	if p.Term != nil {
		w.Term = strings.TrimSpace(*p.Term)
	}
	if p.Translations != nil {
		w.Translations = trimAll(*p.Translations)
	}
	if p.Tags != nil {
		w.Tags = trimAll(*p.Tags)
	}
	if p.Sentences != nil {
		w.Sentences = *p.Sentences
	}
	if p.Language != nil {
		w.Language = strings.TrimSpace(*p.Language)
	}
	if p.IsCustom != nil {
		w.IsCustom = *p.IsCustom
	}
	if p.Status != nil && *p.Status != w.StatusValue() {
		w.Status = model.IntPtr(*p.Status)
		w.StampStage(*p.Status, now.UnixMilli())
	}
	return nil
}
