package model

import (
	"strconv"
	"strings"
	"time"
)

// MaxStage is the highest learning stage a word can reach.
const MaxStage = 5

// StageTimes records when a stage was first reached and most recently
// touched, as epoch milliseconds.
type StageTimes struct {
	CreateTime int64 `bson:"createTime" json:"createTime"`
	UpdateTime int64 `bson:"updateTime" json:"updateTime"`
}

// Sentence is an example usage attached to a word.  Text identifies it.
type Sentence struct {
	Text        string `bson:"sentence" json:"sentence"`
	Translation string `bson:"translation,omitempty" json:"translation,omitempty"`
	URL         string `bson:"url,omitempty" json:"url,omitempty"`
}

// Word is one vocabulary entry, unique per (UserID, Word).
//
// StatusHistory is keyed by stage id ("0".."5").  The StateN* fields are a
// flattened copy of it kept for indexing; they are derived, never written
// directly, and ProjectHistory must run before every write.
//
// A nil Status means "not provided" on incoming records.
type Word struct {
	UserID        int64                 `bson:"user_id" json:"-"`
	Word          string                `bson:"word" json:"word"`
	Term          string                `bson:"term" json:"term"`
	Translations  []string              `bson:"translations" json:"translations"`
	Tags          []string              `bson:"tags" json:"tags"`
	Sentences     []Sentence            `bson:"sentences" json:"sentences"`
	Status        *int                  `bson:"status" json:"status"`
	Language      string                `bson:"language" json:"language"`
	StatusHistory map[string]StageTimes `bson:"status_history" json:"statusHistory"`
	IsCustom      bool                  `bson:"is_custom" json:"isCustom"`

	State0CreateTime int64 `bson:"state0CreateTime,omitempty" json:"state0CreateTime,omitempty"`
	State0UpdateTime int64 `bson:"state0UpdateTime,omitempty" json:"state0UpdateTime,omitempty"`
	State1CreateTime int64 `bson:"state1CreateTime,omitempty" json:"state1CreateTime,omitempty"`
	State1UpdateTime int64 `bson:"state1UpdateTime,omitempty" json:"state1UpdateTime,omitempty"`
	State2CreateTime int64 `bson:"state2CreateTime,omitempty" json:"state2CreateTime,omitempty"`
	State2UpdateTime int64 `bson:"state2UpdateTime,omitempty" json:"state2UpdateTime,omitempty"`
	State3CreateTime int64 `bson:"state3CreateTime,omitempty" json:"state3CreateTime,omitempty"`
	State3UpdateTime int64 `bson:"state3UpdateTime,omitempty" json:"state3UpdateTime,omitempty"`
	State4CreateTime int64 `bson:"state4CreateTime,omitempty" json:"state4CreateTime,omitempty"`
	State4UpdateTime int64 `bson:"state4UpdateTime,omitempty" json:"state4UpdateTime,omitempty"`
	State5CreateTime int64 `bson:"state5CreateTime,omitempty" json:"state5CreateTime,omitempty"`
	State5UpdateTime int64 `bson:"state5UpdateTime,omitempty" json:"state5UpdateTime,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// NormalizeKey returns the canonical form of a word or phrase key.
func NormalizeKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// StageKey returns the StatusHistory key for a stage number.
func StageKey(stage int) string { return strconv.Itoa(stage) }

// ValidStage reports whether stage is within 0..MaxStage.
func ValidStage(stage int) bool { return stage >= 0 && stage <= MaxStage }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// StatusValue returns the stage, or 0 when unset.
func (w *Word) StatusValue() int {
	if w.Status == nil {
		return 0
	}
	return *w.Status
}

// ProjectHistory rewrites the flattened stage fields from StatusHistory.
// Entries with keys outside 0..MaxStage are kept in the map but have no
// flattened counterpart.
func (w *Word) ProjectHistory() {
	for stage := 0; stage <= MaxStage; stage++ {
		c, u := w.stageFields(stage)
		t := w.StatusHistory[StageKey(stage)]
		*c, *u = t.CreateTime, t.UpdateTime
	}
}

// StampStage records that the word is at stage at time nowMs: the create
// time is set only on first arrival, the update time always.
func (w *Word) StampStage(stage int, nowMs int64) {
	if w.StatusHistory == nil {
		w.StatusHistory = make(map[string]StageTimes)
	}
	key := StageKey(stage)
	t, ok := w.StatusHistory[key]
	if !ok {
		t.CreateTime = nowMs
	}
	t.UpdateTime = nowMs
	w.StatusHistory[key] = t
}

func (w *Word) stageFields(stage int) (*int64, *int64) {
	switch stage {
	case 0:
		return &w.State0CreateTime, &w.State0UpdateTime
	case 1:
		return &w.State1CreateTime, &w.State1UpdateTime
	case 2:
		return &w.State2CreateTime, &w.State2UpdateTime
	case 3:
		return &w.State3CreateTime, &w.State3UpdateTime
	case 4:
		return &w.State4CreateTime, &w.State4UpdateTime
	default:
		return &w.State5CreateTime, &w.State5UpdateTime
	}
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (w Word) Clone() Word {
	out := w
	out.Translations = append([]string(nil), w.Translations...)
	out.Tags = append([]string(nil), w.Tags...)
	out.Sentences = append([]Sentence(nil), w.Sentences...)
	if w.Status != nil {
		out.Status = IntPtr(*w.Status)
	}
	if w.StatusHistory != nil {
		out.StatusHistory = make(map[string]StageTimes, len(w.StatusHistory))
		for k, v := range w.StatusHistory {
			out.StatusHistory[k] = v
		}
	}
	return out
}
