// Package faq answers common IT-service questions from a small knowledge
// base before the chat assistant is consulted.
package faq

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// DefaultThreshold is the minimum similarity for a match.
const DefaultThreshold = 0.6

//go:embed default_faq.yaml
var defaultFAQ []byte

// Entry is one answer and the question phrasings that lead to it.
type Entry struct {
	Questions []string `yaml:"questions" json:"questions"`
	Answer    string   `yaml:"answer"    json:"answer"`
}

type file struct {
	Entries []Entry `yaml:"entries"`
}

// KnowledgeBase matches free-text questions against Entries.
type KnowledgeBase struct {
	entries   []Entry
	owner     []int // question position -> entry index
	index     *Index
	threshold float64
}

// Match is a successful lookup.
type Match struct {
	Entry    Entry
	Question string
	Score    float64
}

// Load reads entries from a YAML file; an empty path selects the built-in
// knowledge base.
func Load(path string, threshold float64) (*KnowledgeBase, error) {
	data := defaultFAQ
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("faq: read %s: %w", path, err)
		}
		data = b
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("faq: parse: %w", err)
	}
	return New(f.Entries, threshold)
}

// New builds a knowledge base. A threshold outside (0, 1] selects
// DefaultThreshold.
func New(entries []Entry, threshold float64) (*KnowledgeBase, error) {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	kb := &KnowledgeBase{threshold: threshold}
	var questions []string
	for _, e := range entries {
		e.Answer = strings.TrimSpace(e.Answer)
		if e.Answer == "" || len(e.Questions) == 0 {
			return nil, errors.New("faq: every entry needs an answer and at least one question")
		}
		kb.entries = append(kb.entries, e)
		for _, q := range e.Questions {
			questions = append(questions, q)
			kb.owner = append(kb.owner, len(kb.entries)-1)
		}
	}
	kb.index = NewIndex(questions)
	return kb, nil
}

// Entries returns the entries in file order.
func (kb *KnowledgeBase) Entries() []Entry {
	out := make([]Entry, len(kb.entries))
	copy(out, kb.entries)
	return out
}

// Len returns the number of entries.
func (kb *KnowledgeBase) Len() int { return len(kb.entries) }

// Match returns the best entry for q if its similarity reaches the
// threshold.
func (kb *KnowledgeBase) Match(q string) (Match, bool) {
	res := kb.index.TopK(q, 1)
	if len(res) == 0 || res[0].Score < kb.threshold {
		return Match{}, false
	}
	return Match{
		Entry:    kb.entries[kb.owner[res[0].Doc]],
		Question: res[0].Text,
		Score:    res[0].Score,
	}, true
}

// Preview clips an answer to n runes, appending "..." when clipped.
func Preview(answer string, n int) string {
	if utf8.RuneCountInString(answer) <= n {
		return answer
	}
	r := []rune(answer)
	return string(r[:n]) + "..."
}
