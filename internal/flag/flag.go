// Package flag finds goal tokens in model output and tool results and runs
// the human verification step over them.
package flag

import (
	"regexp"
	"strings"
)

// Format is the canonical flag shape reported in session summaries.
const Format = "picoCTF{...}"

// Pattern matches flag candidates, tolerating the common mangled prefixes
// (picoCF, picoC:F, pico:TF).
var Pattern = regexp.MustCompile(`(?i)pico[C:]?[T:]?F\{[^}]+\}`)

// strictPattern is the canonical spelling used when scanning history.
var strictPattern = regexp.MustCompile(`(?i)picoCTF\{[^}]+\}`)

var bodyPattern = regexp.MustCompile(`\{([^}]+)\}`)

var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\{\.\.\.\}`),
	regexp.MustCompile(`(?i)\{content\}`),
	regexp.MustCompile(`(?i)\{\{\.\.\.\}\}`),
	regexp.MustCompile(`(?i)\{x{4,}\}`),
	regexp.MustCompile(`(?i)\{flag\}`),
	regexp.MustCompile(`(?i)\{your_flag\}`),
	regexp.MustCompile(`(?i)\{[^a-zA-Z0-9_}]{3,}\}`),
	regexp.MustCompile(`(?i)\{[^}]*placeholder[^}]*\}`),
	regexp.MustCompile(`(?i)\{[^}]*example[^}]*\}`),
	regexp.MustCompile(`(?i)\{[^}]*template[^}]*\}`),
}

const (
	minBodyLength = 3
	maxBodyLength = 100
)

// Candidate is a string matching the flag pattern.
type Candidate struct {
	Value string `json:"value"`
	Round int    `json:"round"`
	// Source is a short snippet around the match.
	Source string `json:"source,omitempty"`
}

// Find returns the distinct matches in text in order of first appearance.
func Find(text string) []string {
	matches := Pattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// FindCanonical returns the first canonical picoCTF{...} match in text.
func FindCanonical(text string) (string, bool) {
	m := strictPattern.FindString(text)
	return m, m != ""
}

// IsPlaceholder reports whether a candidate looks like a template or
// instruction text rather than a recovered flag.
func IsPlaceholder(candidate string) bool {
	for _, p := range placeholderPatterns {
		if p.MatchString(candidate) {
			return true
		}
	}
	if m := bodyPattern.FindStringSubmatch(candidate); m != nil {
		body := m[1]
		if len(body) < minBodyLength || len(body) > maxBodyLength {
			return true
		}
	}
	return false
}

// Detector accumulates candidates across a session.
type Detector struct {
	all  []Candidate
	seen map[string]struct{}
}

// NewDetector creates an empty detector.
func NewDetector() *Detector {
	return &Detector{seen: make(map[string]struct{})}
}

// Detect scans text found in round and returns its candidates, deduplicated
// within the call. Values not seen before are added to the session list.
func (d *Detector) Detect(round int, text string) []Candidate {
	values := Find(text)
	out := make([]Candidate, 0, len(values))
	for _, v := range values {
		c := Candidate{Value: v, Round: round, Source: snippet(text, v)}
		out = append(out, c)
		if _, ok := d.seen[v]; ok {
			continue
		}
		d.seen[v] = struct{}{}
		d.all = append(d.all, c)
	}
	return out
}

// All returns every distinct candidate seen in order of discovery.
func (d *Detector) All() []Candidate {
	return append([]Candidate(nil), d.all...)
}

// Values returns the distinct candidate strings in order of discovery.
func (d *Detector) Values() []string {
	out := make([]string, len(d.all))
	for i, c := range d.all {
		out[i] = c.Value
	}
	return out
}

// Latest returns the most recently discovered candidate.
func (d *Detector) Latest() (Candidate, bool) {
	if len(d.all) == 0 {
		return Candidate{}, false
	}
	return d.all[len(d.all)-1], true
}

const snippetRadius = 40

func snippet(text, value string) string {
	i := strings.Index(text, value)
	if i < 0 {
		return ""
	}
	start := i - snippetRadius
	if start < 0 {
		start = 0
	}
	end := i + len(value) + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(strings.ToValidUTF8(text[start:end], ""))
}
