package phrasecluster

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText reduces a phrase to its canonical comparable form: NFKC fold,
// lowercase, punctuation stripped, English stopwords removed, remaining
// tokens stemmed. The result is empty when nothing meaningful survives.
// Applying NormalizeText to its own output is a no-op.
func NormalizeText(text string) string {
	folded := strings.ToLower(norm.NFKC.String(text))
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if english.IsStopWord(tok) {
			continue
		}
		stem := english.Stem(tok, false)
		// A stem may itself land on a stopword; drop it here so the
		// second pass cannot remove more than the first.
		if stem == "" || english.IsStopWord(stem) {
			continue
		}
		out = append(out, stem)
	}
	return strings.Join(out, " ")
}

// NormalizeAll normalizes a slice of strings, preserving order.
func NormalizeAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = NormalizeText(t)
	}
	return out
}

// NormalizeUnits cleans raw phrases and merges the ones sharing a normalized
// form into clustering units. Merging ignores token order, so "shoes running"
// joins the "running shoes" unit. Exact duplicate phrases collapse to one
// entry; phrases that normalize to nothing or contain a trash word go to the
// discarded list instead of being dropped silently.
func NormalizeUnits(phrases, trashWords []string) ([]Unit, []Discarded) {
	trash := make([]string, 0, len(trashWords))
	for _, w := range trashWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			trash = append(trash, w)
		}
	}

	units := make([]Unit, 0, len(phrases))
	index := make(map[string]int, len(phrases))
	seen := make(map[string]struct{}, len(phrases))
	var discarded []Discarded
	for _, phrase := range phrases {
		display := strings.TrimSpace(phrase)
		if display == "" {
			continue
		}
		if _, dup := seen[display]; dup {
			continue
		}
		seen[display] = struct{}{}
		if containsTrashWord(display, trash) {
			discarded = append(discarded, Discarded{Phrase: display, Reason: ReasonTrash})
			continue
		}
		normalized := NormalizeText(display)
		if normalized == "" {
			discarded = append(discarded, Discarded{Phrase: display, Reason: ReasonEmpty})
			continue
		}
		key := mergeKey(normalized)
		if i, ok := index[key]; ok {
			units[i].Originals = append(units[i].Originals, display)
			continue
		}
		index[key] = len(units)
		units = append(units, Unit{Normalized: normalized, Originals: []string{display}})
	}
	return units, discarded
}

// mergeKey is the order-insensitive identity of a normalized phrase: its
// tokens sorted. The unit keeps the first-seen normalized form for display.
func mergeKey(normalized string) string {
	tokens := strings.Fields(normalized)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func containsTrashWord(phrase string, trash []string) bool {
	if len(trash) == 0 {
		return false
	}
	lower := strings.ToLower(phrase)
	for _, w := range trash {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
