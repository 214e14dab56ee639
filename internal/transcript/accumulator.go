// Package transcript reconstructs a clean incremental transcript from
// possibly overlapping recognition snippets and defines the persisted
// snapshot shapes.
package transcript

import (
	"regexp"
	"strings"
)

// noisePhrases are caption-attribution boilerplate strings that some
// recognition backends hallucinate into quiet audio. They are stripped
// before folding. Matching is case-insensitive and whitespace-tolerant
// because backends emit them with irregular internal spacing.
var noisePhrases = []string{
	"Subtitles by the Amara.org community",
	"Subscribe to the channel",
	"Thanks for watching",
}

var noisePatterns = buildNoisePatterns(noisePhrases)

func buildNoisePatterns(phrases []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(phrases))
	for _, phrase := range phrases {
		words := strings.Fields(phrase)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		patterns = append(patterns, regexp.MustCompile(`(?i)`+strings.Join(words, `\s*`)))
	}
	return patterns
}

// stripNoise removes all boilerplate phrase occurrences from s.
func stripNoise(s string) string {
	for _, p := range noisePatterns {
		s = p.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

// Fold merges a new recognition snippet into an existing cumulative
// transcript and returns the updated transcript plus the genuinely new
// text that was appended. The transcript never shrinks.
//
// Incoming snippets are treated as monotonically growing continuations
// of the same utterance: a backend typically resends the utterance so
// far with a small extension, so the new content is the suffix past the
// first point of divergence.
func Fold(existing, snippet string) (updated, appended string) {
	clean := stripNoise(snippet)
	if clean == "" {
		return existing, ""
	}
	if strings.Contains(existing, clean) {
		return existing, ""
	}

	appended = forwardDelta(existing, clean)
	if appended == "" {
		appended = trailingDelta(existing, clean)
	}
	if appended == "" {
		return existing, ""
	}
	// A snippet that shares nothing with the transcript starts a new
	// utterance; separate it from the previous one.
	if existing != "" && appended == clean {
		appended = " " + appended
	}
	return existing + appended, appended
}

// forwardDelta scans both strings from the start for the first index
// where they diverge and returns the snippet's remainder from there.
func forwardDelta(existing, snippet string) string {
	e, s := []rune(existing), []rune(snippet)
	n := len(e)
	if len(s) < n {
		n = len(s)
	}
	for i := 0; i < n; i++ {
		if e[i] != s[i] {
			return string(s[i:])
		}
	}
	// Identical prefixes up to the shorter string: the snippet's extra
	// tail, if any, is the new text.
	if len(s) > len(e) {
		return string(s[len(e):])
	}
	return ""
}

// trailingDelta scans both strings from the end for the first trailing
// divergence and returns the snippet's prefix up to it. Used as a
// fallback when the forward scan yields nothing useful.
func trailingDelta(existing, snippet string) string {
	e, s := []rune(existing), []rune(snippet)
	n := len(e)
	if len(s) < n {
		n = len(s)
	}
	match := 0
	for match < n && e[len(e)-1-match] == s[len(s)-1-match] {
		match++
	}
	return string(s[:len(s)-match])
}

// Accumulator owns one session's cumulative transcript. It is not
// goroutine safe: the pipeline folds from exactly one goroutine.
type Accumulator struct {
	text string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Fold merges snippet into the running transcript and returns the
// appended delta ("" when the snippet was redundant or pure noise).
func (a *Accumulator) Fold(snippet string) string {
	updated, appended := Fold(a.text, snippet)
	a.text = updated
	return appended
}

// Text returns the cumulative transcript so far.
func (a *Accumulator) Text() string {
	return a.text
}
