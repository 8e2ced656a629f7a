package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectHistoryMirrorsMap(t *testing.T) {
	w := Word{StatusHistory: map[string]StageTimes{
		"0": {CreateTime: 10, UpdateTime: 11},
		"3": {CreateTime: 30, UpdateTime: 31},
	}}
	w.State1CreateTime = 999 // stale value with no map entry
	w.ProjectHistory()

	assert.Equal(t, int64(10), w.State0CreateTime)
	assert.Equal(t, int64(11), w.State0UpdateTime)
	assert.Equal(t, int64(30), w.State3CreateTime)
	assert.Equal(t, int64(31), w.State3UpdateTime)
	assert.Zero(t, w.State1CreateTime)
	assert.Zero(t, w.State5UpdateTime)
}

func TestStampStageKeepsFirstCreateTime(t *testing.T) {
	var w Word
	w.StampStage(2, 100)
	w.StampStage(2, 200)

	assert.Equal(t, StageTimes{CreateTime: 100, UpdateTime: 200}, w.StatusHistory["2"])
}

func TestCloneDoesNotAlias(t *testing.T) {
	w := Word{Translations: []string{"a"}, Status: IntPtr(1), StatusHistory: map[string]StageTimes{"1": {1, 1}}}
	c := w.Clone()
	c.Translations[0] = "b"
	*c.Status = 4
	c.StatusHistory["2"] = StageTimes{}

	assert.Equal(t, "a", w.Translations[0])
	assert.Equal(t, 1, *w.Status)
	assert.Len(t, w.StatusHistory, 1)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "serendipity", NormalizeKey("  Serendipity "))
}
