package service

import (
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/vocabulary-sync/internal/merge"
	"github.com/iliyamo/vocabulary-sync/internal/metrics"
	"github.com/iliyamo/vocabulary-sync/internal/model"
)

// PhraseService is the vocabulary engine specialised for phrases.  Phrases
// share the user's word limit and count.
type PhraseService = Vocabulary[model.Phrase]

// NewPhraseService wires the engine with the phrase rules.
func NewPhraseService(store VocabStore[model.Phrase], ledger *QuotaLedger, stats StatsPusher, chunkSize int, m *metrics.Metrics, log *slog.Logger) *PhraseService {
	return newVocabulary(store, kindRules[model.Phrase]{
		name:   "phrase",
		key:    func(p *model.Phrase) string { return p.Word },
		setKey: func(p *model.Phrase, k string) { p.Word = k },
		merge:  merge.Phrase,
		validate: func(p *model.Phrase) error {
			if p.Status != nil && !model.ValidStage(*p.Status) {
				return validationf("status must be between 0 and %d", model.MaxStage)
			}
			return nil
		},
		prepare: func(p *model.Phrase, userID int64, now time.Time) {
			p.UserID = userID
			p.Language = strings.TrimSpace(p.Language)
			if p.Status == nil {
				p.Status = model.IntPtr(0)
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			p.UpdatedAt = now
		},
		touch: func(p *model.Phrase, now time.Time) { p.UpdatedAt = now },
	}, ledger, stats, chunkSize, m, log)
}
