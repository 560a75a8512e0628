// Package prefilter drops mail that should never reach the classifier
// (empty messages and bulk mail) and cleans message bodies before they are
// copied into ticket descriptions.
package prefilter

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// DefaultBulkKeywords mark newsletters and marketing mail.
var DefaultBulkKeywords = []string{
	"unsubscribe",
	"newsletter",
	"promotion",
	"marketing",
	"view in browser",
	"privacy policy",
}

// Rules is the YAML shape of a rules file:
//
//	bulk_keywords:
//	  - unsubscribe
//	  - webinar
type Rules struct {
	BulkKeywords []string `yaml:"bulk_keywords"`
}

// Reason explains why a message was filtered.
type Reason string

const (
	ReasonNone  Reason = ""
	ReasonEmpty Reason = "empty"
	ReasonBulk  Reason = "bulk"
)

// Filter applies the rules. The zero value is not usable; build with New.
type Filter struct {
	fold     cases.Caser
	keywords []string
}

// New returns a filter for keywords. Nil or empty keywords use the defaults.
func New(keywords []string) *Filter {
	if len(keywords) == 0 {
		keywords = DefaultBulkKeywords
	}
	f := &Filter{fold: cases.Fold()}
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k != "" {
			f.keywords = append(f.keywords, f.fold.String(k))
		}
	}
	return f
}

// LoadRules reads a YAML rules file. An empty path returns the defaults.
func LoadRules(path string) (*Filter, error) {
	if path == "" {
		return New(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prefilter: read rules: %w", err)
	}
	var r Rules
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &r); err != nil {
		return nil, fmt.Errorf("prefilter: parse rules: %w", err)
	}
	return New(r.BulkKeywords), nil
}

// Keywords returns the active (case-folded) keywords.
func (f *Filter) Keywords() []string {
	out := make([]string, len(f.keywords))
	copy(out, f.keywords)
	return out
}

// Check returns why text should be ignored, or ReasonNone.
func (f *Filter) Check(text string) Reason {
	if strings.TrimSpace(text) == "" {
		return ReasonEmpty
	}
	if f.IsBulk(text) {
		return ReasonBulk
	}
	return ReasonNone
}

// IsBulk reports whether text contains any bulk keyword, ignoring case.
func (f *Filter) IsBulk(text string) bool {
	folded := f.fold.String(text)
	for _, k := range f.keywords {
		if strings.Contains(folded, k) {
			return true
		}
	}
	return false
}
