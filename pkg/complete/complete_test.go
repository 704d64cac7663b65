package complete

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComplete_StaticPrefix(t *testing.T) {
	ix := NewIndex([]string{"shutdown", "show channels", "show calls", "status"})

	got := ix.Complete("sh")
	assert.Equal(t, []string{"show calls", "show channels", "shutdown"}, got)
}

func TestComplete_CaseSensitive(t *testing.T) {
	ix := NewIndex([]string{"status"})

	assert.Empty(t, ix.Complete("ST"))
	assert.Equal(t, []string{"status"}, ix.Complete("st"))
}

func TestComplete_DynamicAfterStatic(t *testing.T) {
	ix := NewIndex([]string{"sofia", "status"})
	ix.Observe("status sip_profiles")

	// Statics win the tie-break even when a history token sorts
	// earlier lexicographically.
	got := ix.Complete("s")
	assert.Equal(t, []string{"sofia", "status", "sip_profiles"}, got)
}

func TestObserve_TokenizesWholeCommand(t *testing.T) {
	ix := NewIndex(nil)
	ix.Observe("uuid_answer 1234-5678 async")

	assert.Equal(t, []string{"1234-5678"}, ix.Complete("12"))
	assert.Equal(t, []string{"async"}, ix.Complete("as"))
	assert.Equal(t, []string{"uuid_answer"}, ix.Complete("uuid"))
}

func TestObserve_SkipsDuplicatesAndStatics(t *testing.T) {
	ix := NewIndex([]string{"status"})
	ix.Observe("status")
	ix.Observe("status")

	assert.Equal(t, []string{"status"}, ix.Complete("stat"))
}

func TestComplete_NoMatch(t *testing.T) {
	ix := NewIndex([]string{"status"})

	assert.Empty(t, ix.Complete("xyz"))
}

func TestReadline_Do(t *testing.T) {
	ix := NewIndex([]string{"show calls", "show channels"})
	rl := &Readline{Index: ix}

	line := []rune("show c")
	cands, length := rl.Do(line, len(line))
	assert.Equal(t, len(line), length)
	assert.Equal(t, [][]rune{[]rune("alls"), []rune("hannels")}, cands)
}

func TestReadline_DoNoCandidates(t *testing.T) {
	rl := &Readline{Index: NewIndex(nil)}

	cands, length := rl.Do([]rune("zzz"), 3)
	assert.Nil(t, cands)
	assert.Zero(t, length)
}
