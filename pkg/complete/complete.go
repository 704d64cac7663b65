// Package complete produces prompt completion candidates from a static
// command table merged with tokens seen in previously accepted
// commands. Completion is purely local: no network round-trip, so the
// prompt never blocks on the connection.
package complete

import (
	"sort"
	"strings"
)

// Index is the completion source. Reads happen on every Tab press;
// writes only when the interactive loop accepts a command for
// dispatch, so single-writer discipline applies and no locking is
// required.
type Index struct {
	static    []string
	staticSet map[string]struct{}
	dynamic   map[string]struct{}
	dynSorted []string
}

// NewIndex builds an index over the given static command table. The
// table is copied and sorted.
func NewIndex(static []string) *Index {
	ix := &Index{
		static:    make([]string, len(static)),
		staticSet: make(map[string]struct{}, len(static)),
		dynamic:   make(map[string]struct{}),
	}
	copy(ix.static, static)
	sort.Strings(ix.static)
	for _, s := range ix.static {
		ix.staticSet[s] = struct{}{}
	}
	return ix
}

// Observe records the tokens of an accepted command so they become
// completion candidates.
func (ix *Index) Observe(command string) {
	changed := false
	for _, tok := range strings.Fields(command) {
		if _, dup := ix.dynamic[tok]; dup {
			continue
		}
		if _, dup := ix.staticSet[tok]; dup {
			continue
		}
		ix.dynamic[tok] = struct{}{}
		ix.dynSorted = append(ix.dynSorted, tok)
		changed = true
	}
	if changed {
		sort.Strings(ix.dynSorted)
	}
}

// Complete returns candidates whose text starts with partial,
// case-sensitively: static table entries first, then history-derived
// tokens, each group in lexicographic order.
func (ix *Index) Complete(partial string) []string {
	var out []string
	for _, cmd := range ix.static {
		if strings.HasPrefix(cmd, partial) {
			out = append(out, cmd)
		}
	}
	for _, tok := range ix.dynSorted {
		if strings.HasPrefix(tok, partial) {
			out = append(out, tok)
		}
	}
	return out
}

// Commands is the static keyword table wired into the interactive
// prompt: the command surface of a stock FreeSWITCH console.
func Commands() []string {
	return []string{
		"status",
		"version",
		"uptime",
		"help",
		"show",
		"show channels",
		"show channels count",
		"show calls",
		"show registrations",
		"show modules",
		"show interfaces",
		"show api",
		"show application",
		"show codec",
		"show file",
		"show timer",
		"show tasks",
		"show complete",
		"reload",
		"reloadxml",
		"originate",
		"sofia",
		"sofia status",
		"sofia profile",
		"sofia global",
		"uuid_answer",
		"uuid_hangup",
		"uuid_transfer",
		"uuid_bridge",
		"uuid_park",
		"uuid_hold",
		"uuid_break",
		"uuid_kill",
		"uuid_dump",
		"conference",
		"conference list",
		"fsctl",
		"fsctl pause",
		"fsctl resume",
		"fsctl shutdown",
		"load",
		"unload",
		"bgapi",
		"console",
		"log",
		"db",
		"group",
		"user_exists",
		"hupall",
		"shutdown",
		"eval",
		"expand",
		"global_getvar",
		"global_setvar",
	}
}

// Readline adapts an Index to the line editor's completion interface.
type Readline struct {
	Index *Index
}

// Do implements readline.AutoCompleter: it completes the line prefix
// up to the cursor and returns the candidate remainders together with
// the length of the shared prefix.
func (r *Readline) Do(line []rune, pos int) ([][]rune, int) {
	partial := string(line[:pos])
	candidates := r.Index.Complete(partial)
	if len(candidates) == 0 {
		return nil, 0
	}
	out := make([][]rune, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, []rune(c)[pos:])
	}
	return out, pos
}
