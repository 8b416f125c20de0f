package wakeword

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Lexicon is the immutable set of accepted wake phrases
type Lexicon struct {
	phrases []string
	index   map[string]string
}

// NewLexicon builds a lexicon from phrases
func NewLexicon(phrases ...string) *Lexicon {
	l := &Lexicon{index: make(map[string]string)}
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		key := normalize(p)
		if key == "" {
			continue
		}
		if _, dup := l.index[key]; dup {
			continue
		}
		l.index[key] = p
		l.phrases = append(l.phrases, p)
	}
	return l
}

// LoadLexicon reads the first whitespace-separated token of every
// non-empty line; lines starting with # are skipped.
func LoadLexicon(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wake lexicon: %w", err)
	}
	defer f.Close()

	var phrases []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		phrases = append(phrases, strings.Fields(line)[0])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wake lexicon: %w", err)
	}
	return NewLexicon(phrases...), nil
}

// Match validates a spotter result. An empty lexicon accepts any non-empty result.
func (l *Lexicon) Match(result string) (string, bool) {
	key := normalize(result)
	if key == "" {
		return "", false
	}
	if l == nil || len(l.index) == 0 {
		return strings.TrimSpace(result), true
	}
	p, ok := l.index[key]
	return p, ok
}

// Phrases returns a copy of the phrases in load order
func (l *Lexicon) Phrases() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.phrases...)
}

// Len returns the number of phrases
func (l *Lexicon) Len() int {
	if l == nil {
		return 0
	}
	return len(l.phrases)
}

// normalize lowercases and strips whitespace
func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
