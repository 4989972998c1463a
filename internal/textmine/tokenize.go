package textmine

import (
	_ "embed"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

//go:embed stopwords.txt
var stopWordsFile string

// Lemmatizer reduces a case-folded token to its dictionary form.
type Lemmatizer interface {
	Lemma(word string) string
}

// IdentityLemmatizer returns tokens unchanged.
type IdentityLemmatizer struct{}

func (IdentityLemmatizer) Lemma(word string) string { return word }

var (
	englishOnce sync.Once
	english     *golem.Lemmatizer
	englishErr  error
)

// EnglishLemmatizer returns the shared English dictionary lemmatizer. The
// dictionary is loaded on first use.
func EnglishLemmatizer() (Lemmatizer, error) {
	englishOnce.Do(func() {
		english, englishErr = golem.New(en.New())
	})
	if englishErr != nil {
		return nil, englishErr
	}
	return english, nil
}

// DefaultStopWords returns the built-in English stop-word list.
func DefaultStopWords() []string {
	var words []string
	for _, line := range strings.Split(stopWordsFile, "\n") {
		if w := strings.TrimSpace(line); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// Tokenizer turns free text into lemmatised, stop-word-free terms.
type Tokenizer struct {
	stop  map[string]struct{}
	lemma Lemmatizer
}

// NewTokenizer builds a tokenizer over stop words (case-folded on load).
func NewTokenizer(stopWords []string, lemma Lemmatizer) *Tokenizer {
	if lemma == nil {
		lemma = IdentityLemmatizer{}
	}
	t := &Tokenizer{stop: make(map[string]struct{}, len(stopWords)), lemma: lemma}
	fold := cases.Fold()
	for _, w := range stopWords {
		w = strings.TrimSpace(fold.String(w))
		if w != "" {
			t.stop[w] = struct{}{}
		}
	}
	return t
}

// Tokens normalises text (NFKC, Unicode case folding), splits on every rune that
// is neither a letter nor a digit, drops single-rune and digits-only tokens and
// stop words, then lemmatises. Stop words are checked again after lemmatisation.
func (t *Tokenizer) Tokens(text string) []string {
	// cases.Caser keeps state; one per call keeps Tokens safe for concurrent use.
	folded := cases.Fold().String(norm.NFKC.String(text))

	raw := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if utf8.RuneCountInString(tok) < 2 || digitsOnly(tok) || t.isStop(tok) {
			continue
		}
		lemma := t.lemma.Lemma(tok)
		if lemma == "" {
			lemma = tok
		}
		if t.isStop(lemma) {
			continue
		}
		out = append(out, lemma)
	}
	return out
}

func (t *Tokenizer) isStop(tok string) bool {
	_, ok := t.stop[tok]
	return ok
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
