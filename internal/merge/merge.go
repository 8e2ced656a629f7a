// Package merge holds the conflict-resolution rules applied when an incoming
// vocabulary record meets one already stored.  The functions are pure: they
// never touch storage or clocks, and report whether anything changed so the
// caller can skip writes that would be no-ops.
//
// Rules:
//   - translations and tags: union, deduplicated by trimmed equality,
//     existing order first, unseen incoming values appended
//   - sentences: union keyed by sentence text
//   - statusHistory: an incoming stage is added only when absent locally
//   - status and language: last writer wins when the incoming value is
//     present and different
package merge

import (
	"strings"

	"github.com/iliyamo/vocabulary-sync/internal/model"
)

// Word merges incoming into existing.  The returned record always carries
// projected stage fields; changed is false when nothing differs.
func Word(existing, incoming model.Word) (model.Word, bool) {
	out := existing.Clone()
	changed := false

	if v, ok := unionStrings(out.Translations, incoming.Translations); ok {
		out.Translations, changed = v, true
	}
	if v, ok := unionStrings(out.Tags, incoming.Tags); ok {
		out.Tags, changed = v, true
	}
	if v, ok := unionSentences(out.Sentences, incoming.Sentences); ok {
		out.Sentences, changed = v, true
	}
	for key, t := range incoming.StatusHistory {
		if out.StatusHistory == nil {
			out.StatusHistory = make(map[string]model.StageTimes)
		}
		if _, seen := out.StatusHistory[key]; !seen {
			out.StatusHistory[key] = t
			changed = true
		}
	}
	if incoming.Status != nil && (out.Status == nil || *out.Status != *incoming.Status) {
		out.Status = model.IntPtr(*incoming.Status)
		changed = true
	}
	if lang := strings.TrimSpace(incoming.Language); lang != "" && lang != out.Language {
		out.Language = lang
		changed = true
	}
	out.ProjectHistory()
	return out, changed
}

// Phrase applies the status and language rules to a phrase.
func Phrase(existing, incoming model.Phrase) (model.Phrase, bool) {
	out := existing.Clone()
	changed := false
	if incoming.Status != nil && (out.Status == nil || *out.Status != *incoming.Status) {
		out.Status = model.IntPtr(*incoming.Status)
		changed = true
	}
	if lang := strings.TrimSpace(incoming.Language); lang != "" && lang != out.Language {
		out.Language = lang
		changed = true
	}
	return out, changed
}

// unionStrings appends the trimmed incoming values not already present.
func unionStrings(existing, incoming []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, s := range existing {
		t := strings.TrimSpace(s)
		if _, dup := seen[t]; dup || t == "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, s)
	}
	added := false
	for _, s := range incoming {
		t := strings.TrimSpace(s)
		if _, dup := seen[t]; dup || t == "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		added = true
	}
	if !added {
		return existing, false
	}
	return out, true
}

func unionSentences(existing, incoming []model.Sentence) ([]model.Sentence, bool) {
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[strings.TrimSpace(s.Text)] = struct{}{}
	}
	out := existing
	added := false
	for _, s := range incoming {
		key := strings.TrimSpace(s.Text)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if !added {
			out = append([]model.Sentence(nil), existing...)
			added = true
		}
		out = append(out, s)
	}
	return out, added
}
