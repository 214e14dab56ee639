package transcript

import (
	"strings"
	"testing"
)

func TestFold_GrowingContinuation(t *testing.T) {
	updated, appended := Fold("hello wor", "hello world")

	if appended != "ld" {
		t.Errorf("expected appended 'ld', got %q", appended)
	}
	if updated != "hello world" {
		t.Errorf("expected 'hello world', got %q", updated)
	}
}

func TestFold_RedundantSnippetUnchanged(t *testing.T) {
	existing := "the quick brown fox jumps"

	updated, appended := Fold(existing, "brown fox")

	if appended != "" {
		t.Errorf("expected empty appended text, got %q", appended)
	}
	if updated != existing {
		t.Errorf("expected transcript unchanged, got %q", updated)
	}
}

func TestFold_EmptySnippet(t *testing.T) {
	updated, appended := Fold("hello", "")

	if updated != "hello" || appended != "" {
		t.Errorf("expected unchanged transcript, got (%q, %q)", updated, appended)
	}
}

func TestFold_EmptyTranscript(t *testing.T) {
	updated, appended := Fold("", "hello world")

	if updated != "hello world" {
		t.Errorf("expected 'hello world', got %q", updated)
	}
	if appended != "hello world" {
		t.Errorf("expected appended 'hello world', got %q", appended)
	}
}

func TestFold_NoiseOnlySnippet(t *testing.T) {
	updated, appended := Fold("hello world", "Subtitles by the Amara.org community")

	if appended != "" {
		t.Errorf("expected empty appended text, got %q", appended)
	}
	if updated != "hello world" {
		t.Errorf("expected transcript unchanged, got %q", updated)
	}
}

func TestFold_NoiseWithIrregularSpacing(t *testing.T) {
	// The attribution phrase arrives with irregular internal whitespace
	// around already-transcribed text.
	snippet := "Subtitles  by   the\tAmara.org community hello world"

	updated, appended := Fold("hello world", snippet)

	if appended != "" {
		t.Errorf("expected empty appended text, got %q", appended)
	}
	if updated != "hello world" {
		t.Errorf("expected transcript unchanged, got %q", updated)
	}
}

func TestFold_DivergentSnippetAppendsSuffix(t *testing.T) {
	// Snippet diverges mid-way: everything from the divergence on is new.
	updated, appended := Fold("good morning", "good evening everyone")

	if appended != "evening everyone" {
		t.Errorf("expected 'evening everyone', got %q", appended)
	}
	if updated != "good morningevening everyone" {
		t.Errorf("unexpected transcript %q", updated)
	}
}

func TestFold_NewUtteranceSeparated(t *testing.T) {
	updated, appended := Fold("first utterance", "second utterance")

	if appended != " second utterance" {
		t.Errorf("expected ' second utterance', got %q", appended)
	}
	if updated != "first utterance second utterance" {
		t.Errorf("unexpected transcript %q", updated)
	}
}

func TestFold_Monotonicity(t *testing.T) {
	snippets := []string{
		"I want",
		"I want to cancel",
		"I want to cancel my subscription",
		"Thanks for watching",
		"yes please",
		"",
		"yes please go ahead",
	}

	text := ""
	prev := 0
	for _, s := range snippets {
		text, _ = Fold(text, s)
		if len(text) < prev {
			t.Fatalf("transcript shrank after folding %q: %d < %d", s, len(text), prev)
		}
		prev = len(text)
	}
}

func TestFold_Idempotent(t *testing.T) {
	text, _ := Fold("", "hello world")
	again, appended := Fold(text, "hello world")

	if appended != "" {
		t.Errorf("re-folding the same snippet appended %q", appended)
	}
	if again != text {
		t.Errorf("transcript changed on re-fold: %q", again)
	}
}

func TestAccumulator_SequentialFolds(t *testing.T) {
	acc := NewAccumulator()

	if got := acc.Fold("hello wor"); got != "hello wor" {
		t.Errorf("first fold appended %q", got)
	}
	if got := acc.Fold("hello world"); got != "ld" {
		t.Errorf("second fold appended %q", got)
	}
	if acc.Text() != "hello world" {
		t.Errorf("expected 'hello world', got %q", acc.Text())
	}
}

func TestStripNoise_AllPhrases(t *testing.T) {
	for _, phrase := range noisePhrases {
		t.Run(phrase, func(t *testing.T) {
			if got := stripNoise(phrase); got != "" {
				t.Errorf("phrase not stripped, remainder %q", got)
			}
			// Case variants strip too.
			if got := stripNoise(strings.ToUpper(phrase)); got != "" {
				t.Errorf("uppercase variant not stripped, remainder %q", got)
			}
		})
	}
}
