// Package skills tags stored vacancies with the technologies their
// descriptions mention. Detection is deterministic: a curated pattern
// dictionary first, then a discovery sweep for unknown tech-shaped
// tokens filtered through an exclusion pipeline. Imprecision in the
// discovery phase is accepted.
package skills

import (
	"regexp"
	"sort"
	"strings"
)

// Tagger extracts skill tags from vacancy text.
type Tagger struct {
	cfg      Config
	patterns map[string]*regexp.Regexp
}

// discoveryRe sweeps for tech-shaped tokens: 3-12 letter acronyms,
// acronym+digit tokens (ISO27001, UTF8, and also requisition codes,
// which are filtered later), CamelCase names, and dot/slash-joined
// tokens like "Node.js" or "CI/CD".
var discoveryRe = regexp.MustCompile(`\b[A-Z]{3,12}\b|\b[A-Z]{2,}\d[\dA-Za-z]*\b|\b[A-Z][a-z]+[A-Z][A-Za-z0-9]+\b|\b[A-Za-z]+[./][A-Za-z]{2,}\b`)

var (
	genderSuffixRe = regexp.MustCompile(`(?i)\(?(m/w/d|f/m/d|w/m/d|m/f/d|gn|m/w/x|x/m/w)\)?`)
	numericRe      = regexp.MustCompile(`^[\d.,/€$£%]+$`)
	urlishRe       = regexp.MustCompile(`(?i)^(www\.|https?)|@|\.(com|de|org|net|io|at|ch)$`)
	trackingRe     = regexp.MustCompile(`^[A-Za-z]+\d+[A-Za-z0-9]*$`)
)

// New creates a tagger from cfg, compiling the known-skill patterns
// once. Patterns that fail to compile are dropped.
func New(cfg Config) *Tagger {
	compiled := make(map[string]*regexp.Regexp, len(cfg.Patterns))
	for name, pattern := range cfg.Patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		compiled[name] = re
	}
	return &Tagger{cfg: cfg, patterns: compiled}
}

// Extract returns the sorted tag set for a title+description pair.
func (t *Tagger) Extract(title, description string) []string {
	text := genderSuffixRe.ReplaceAllString(title+" "+description, " ")
	lower := strings.ToLower(text)

	found := make(map[string]bool)
	for name, re := range t.patterns {
		if re.MatchString(lower) {
			found[name] = true
		}
	}

	for _, candidate := range discoveryRe.FindAllString(text, -1) {
		token := strings.Trim(candidate, ".,/()")
		if t.keep(token, found) {
			found[token] = true
		}
	}

	tags := make([]string, 0, len(found))
	for tag := range found {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ExtractJoined returns the comma-joined form stored on the record.
func (t *Tagger) ExtractJoined(title, description string) string {
	return strings.Join(t.Extract(title, description), ", ")
}

// keep runs the discovery exclusion pipeline over one candidate.
func (t *Tagger) keep(token string, found map[string]bool) bool {
	if len(token) < 2 {
		return false
	}
	upper := strings.ToUpper(token)
	if t.cfg.denylisted(upper) {
		return false
	}
	if numericRe.MatchString(token) || urlishRe.MatchString(token) {
		return false
	}

	// Joined tokens survive only when both halves carry meaning.
	if i := strings.IndexAny(token, "./"); i >= 0 {
		head, tail := token[:i], token[i+1:]
		if len(head) < 2 || len(tail) < 2 {
			return false
		}
		if t.cfg.denylisted(strings.ToUpper(head)) || t.cfg.denylisted(strings.ToUpper(tail)) {
			return false
		}
	}

	// Bare 3-letter acronyms are overwhelmingly boilerplate; only a
	// known-tech allowlist passes.
	if len(token) == 3 && token == upper && !t.cfg.allowedAcronym(upper) {
		return false
	}

	// Letter-digit jumbles are tracking or requisition codes, except
	// known prefixes (ISO8601, UTF8, ...).
	if trackingRe.MatchString(token) && !t.cfg.knownPrefix(upper) {
		return false
	}

	// Containment dedup against matched known skills: "PowerBI" must
	// not ride alongside "Power BI".
	norm := normalizeTag(token)
	for known := range found {
		k := normalizeTag(known)
		if strings.Contains(k, norm) || strings.Contains(norm, k) {
			return false
		}
	}
	return true
}

// normalizeTag lowers a tag and strips separators so spelling variants
// of the same skill compare equal.
func normalizeTag(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '-', '/':
			return -1
		}
		return r
	}, s)
}
