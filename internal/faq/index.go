package faq

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Result is a ranked document with its similarity score.
type Result struct {
	Doc   int // position of the document passed to NewIndex
	Text  string
	Score float64
}

// Index is a read-only, concurrency-safe Jaccard index over short texts.
//
// Scoring: score = |Q ∩ D| / |Q ∪ D| over lowercased word sets, with
// stopwords removed from both sides.
type Index struct {
	cfg  config
	docs []doc
}

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	maxDocs   int
}

func defaultConfig() config {
	return config{stopwords: toSet(defaultStopwords), maxDocs: 0}
}

var defaultStopwords = []string{"a", "an", "the", "to", "i", "is", "are", "do", "does", "me", "my", "of", "for", "please"}

// WithStopwords replaces the default stopword list. An empty list keeps
// the defaults.
func WithStopwords(words []string) Option {
	return func(c *config) {
		if m := toSet(words); len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs caps how many documents are indexed.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

type doc struct {
	pos    int
	text   string
	tokens map[string]struct{}
}

// NewIndex indexes texts. Texts with no tokens left after stopword removal
// are skipped but keep their position numbering.
func NewIndex(texts []string, opts ...Option) *Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(texts))
	for i, raw := range texts {
		t := strings.TrimSpace(raw)
		toks := tokenize(t, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{pos: i, text: t, tokens: toks})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &Index{cfg: cfg, docs: docs}
}

// Len returns the number of indexed documents.
func (i *Index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching documents. Ties prefer shorter texts,
// then lexical order, so results are deterministic.
func (i *Index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		Result
		lenRunes int
	}
	buf := make([]scored, 0, len(i.docs))
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(len(qTokens) + len(d.tokens) - over)
		buf = append(buf, scored{
			Result:   Result{Doc: d.pos, Text: d.text, Score: float64(over) / union},
			lenRunes: utf8.RuneCountInString(d.text),
		})
	}
	if len(buf) == 0 {
		return nil
	}
	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].Text < buf[b].Text
	})
	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for j := 0; j < k; j++ {
		out[j] = buf[j].Result
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func toSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			m[w] = struct{}{}
		}
	}
	return m
}
