// Package secretdetect finds credentials in text so they can be masked before
// anything is written to disk.
package secretdetect

import (
	"regexp"
	"sort"
	"strings"
)

// Placeholder replaces every redacted secret.
const Placeholder = "[REDACTED]"

// Match is one detected secret.
type Match struct {
	Pattern string
	Start   int
	End     int
}

// Detector scans text for known secret shapes and literal values.
type Detector struct {
	patterns []Pattern
}

// New creates a detector with the default patterns.
func New() *Detector {
	return &Detector{patterns: DefaultPatterns()}
}

// AddPattern adds a pattern to the detector.
func (d *Detector) AddPattern(p Pattern) {
	d.patterns = append(d.patterns, p)
}

// AddLiteral masks an exact value, such as the configured API key. Values
// shorter than eight bytes are ignored.
func (d *Detector) AddLiteral(name, value string) {
	value = strings.TrimSpace(value)
	if len(value) < 8 {
		return
	}
	d.AddPattern(Pattern{Name: name, Regex: regexp.MustCompile(regexp.QuoteMeta(value))})
}

// Scan returns the secrets found in content ordered by position. Overlapping
// matches are merged.
func (d *Detector) Scan(content string) []Match {
	var matches []Match
	for _, p := range d.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(content, -1) {
			matches = append(matches, Match{Pattern: p.Name, Start: loc[0], End: loc[1]})
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		return matches[i].End > matches[j].End
	})
	merged := matches[:1]
	for _, m := range matches[1:] {
		last := &merged[len(merged)-1]
		if m.Start < last.End {
			if m.End > last.End {
				last.End = m.End
			}
			continue
		}
		merged = append(merged, m)
	}
	return merged
}

// Redact replaces every detected secret in content with Placeholder.
func (d *Detector) Redact(content string) string {
	matches := d.Scan(content)
	if len(matches) == 0 {
		return content
	}

	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, m := range matches {
		b.WriteString(content[prev:m.Start])
		b.WriteString(Placeholder)
		prev = m.End
	}
	b.WriteString(content[prev:])
	return b.String()
}
