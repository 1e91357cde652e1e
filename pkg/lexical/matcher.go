// Package lexical provides the canonicalization, tokenization, and
// multi-pattern entity matching used by the lexical recall source and by
// the graph mirror's simple name-matching fallback for fact-to-entity
// mentions. There is no NLP here beyond string normalization and
// Aho-Corasick scanning: entity surface forms come from fact subjects and
// objects already stored in the engine, never inferred.
package lexical

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"
)

var english = stopwords.MustGet("en")

// isJoiner reports whether r is punctuation that commonly appears inside a
// multi-word name or term and should be preserved during canonicalization.
func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '‘',
		'-', '–', '—',
		'·', '.', '_', '/', '#', '&':
		return true
	default:
		return false
	}
}

func isSeparator(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || isJoiner(r) {
		return false
	}
	return true
}

// Canonicalize lowercases text, folds curly quotes and dashes to their
// plain equivalents, and collapses runs of separators into single spaces.
// It is the single normalization function used for both pattern
// compilation and document scanning, so offsets stay consistent.
func Canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true
	for _, ch := range s {
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}
	result := out.String()
	if len(result) > 0 && result[len(result)-1] == ' ' {
		result = result[:len(result)-1]
	}
	return result
}

// Tokens splits text on separators, filtering stop words, for the lexical
// recall source's term-frequency scoring.
func Tokens(text string) []string {
	normalized := Canonicalize(text)
	fields := strings.Fields(normalized)
	out := make([]string, 0, len(fields))
	for _, w := range fields {
		if w == "" || english.IsStopword(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Match is a byte-offset span in the original text that matched a known
// entity surface form.
type Match struct {
	Start       int
	End         int
	MatchedText string
	EntityIDs   []string
}

// EntityName is a registered surface form: a canonical label plus any
// known aliases, keyed by an opaque entity id. In this engine entity ids
// are the normalized fact subject/object strings themselves (§13 OQ1).
type EntityName struct {
	ID      string
	Label   string
	Aliases []string
}

// Dictionary is a compiled Aho-Corasick automaton over a set of entity
// surface forms, usable both for exact lookup and for full-text scanning.
type Dictionary struct {
	ac           *ahocorasick.Automaton
	patterns     []string
	patternIndex map[string]int
	patternToIDs [][]string
}

// Compile builds a Dictionary from a set of entity names. An empty input
// yields a valid, always-empty Dictionary rather than an error.
func Compile(entities []EntityName) (*Dictionary, error) {
	d := &Dictionary{
		patternIndex: make(map[string]int),
	}

	add := func(id, surface string) {
		key := Canonicalize(surface)
		if key == "" {
			return
		}
		if idx, ok := d.patternIndex[key]; ok {
			d.patternToIDs[idx] = appendUnique(d.patternToIDs[idx], id)
			return
		}
		idx := len(d.patterns)
		d.patterns = append(d.patterns, key)
		d.patternIndex[key] = idx
		d.patternToIDs = append(d.patternToIDs, []string{id})
	}

	for _, e := range entities {
		add(e.ID, e.Label)
		for _, alias := range e.Aliases {
			add(e.ID, alias)
		}
	}

	if len(d.patterns) == 0 {
		return d, nil
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(d.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	d.ac = automaton
	return d, nil
}

// Lookup returns entity ids registered for an exact surface form.
func (d *Dictionary) Lookup(surface string) []string {
	key := Canonicalize(surface)
	idx, ok := d.patternIndex[key]
	if !ok {
		return nil
	}
	return d.patternToIDs[idx]
}

// Scan finds every known entity mention in text, with offsets mapped back
// onto the original (non-canonicalized) byte positions.
func (d *Dictionary) Scan(text string) []Match {
	if d.ac == nil {
		return nil
	}
	canonical := Canonicalize(text)
	canonToOrig := buildOffsetMap(text)

	raw := d.ac.FindAllOverlapping([]byte(canonical))
	out := make([]Match, 0, len(raw))
	for _, m := range raw {
		start := mapOffset(m.Start, canonToOrig, len(text))
		end := mapOffset(m.End, canonToOrig, len(text))
		if start >= len(text) || end > len(text) || start >= end {
			continue
		}
		out = append(out, Match{
			Start:       start,
			End:         end,
			MatchedText: text[start:end],
			EntityIDs:   d.patternToIDs[m.PatternID],
		})
	}
	return out
}

func buildOffsetMap(original string) []int {
	mapping := make([]int, 0, len(original)+1)
	lastWasSpace := true
	origPos := 0

	for _, ch := range original {
		runeLen := utf8.RuneLen(ch)
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			canonLen := utf8.RuneLen(c)
			for i := 0; i < canonLen; i++ {
				mapping = append(mapping, origPos)
			}
			lastWasSpace = false
		} else if !lastWasSpace {
			mapping = append(mapping, origPos)
			lastWasSpace = true
		}
		origPos += runeLen
	}
	mapping = append(mapping, origPos)
	return mapping
}

func mapOffset(canonOffset int, mapping []int, originalLen int) int {
	if canonOffset >= len(mapping) {
		return originalLen
	}
	if canonOffset < 0 {
		return 0
	}
	return mapping[canonOffset]
}

func appendUnique(slice []string, item string) []string {
	for _, s := range slice {
		if s == item {
			return slice
		}
	}
	return append(slice, item)
}
