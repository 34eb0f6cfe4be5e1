package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	genderRe = regexp.MustCompile(`[\(\[/]*(m/w/d|f/m/d|w/m/d|m/f/d|gn|m/w/x|x/m/w)[\)\]/]*`)
	legalRe  = regexp.MustCompile(`\b(gmbh|ag|se|kg|limited|ltd|inc|llc|gbr|co\.? kg|kgaa)\b`)
	asciiRe  = regexp.MustCompile(`[^a-z0-9а-яё ]`)

	titleGenderRe = regexp.MustCompile(`(?i)\s*[\(/]?\s*(m/w/d|f/m/d|w/m/d|gn|m/f/d)\s*[\)]?\s*`)
	titleRemoteRe = regexp.MustCompile(`(?i)\s*[\|\-/]?\s*(100%\s*remote|Homeoffice|Home-Office|Hybrid|Remote|on-site)\s*`)
	spacesRe      = regexp.MustCompile(`\s+`)
	postcodeRe    = regexp.MustCompile(`\d{5}`)
)

// cityAliases glues different spellings of the same city together before
// fingerprinting, so "Munich" and "München" listings collide.
var cityAliases = map[string]string{
	"berlin":     "Berlin",
	"hamburg":    "Hamburg",
	"stuttgart":  "Stuttgart",
	"frankfurt":  "Frankfurt am Main",
	"ffm":        "Frankfurt am Main",
	"münchen":    "München",
	"munich":     "München",
	"köln":       "Köln",
	"cologne":    "Köln",
	"nürnberg":   "Nürnberg",
	"nuremberg":  "Nürnberg",
	"düsseldorf": "Düsseldorf",
	"hannover":   "Hannover",
	"zürich":     "Zürich",
	"zurich":     "Zürich",
	"wien":       "Wien",
	"vienna":     "Wien",
}

// Clean normalizes a single field for identity resolution: lowercase,
// gender markers and legal-entity suffixes stripped, everything outside
// a conservative Latin/Cyrillic alphanumeric set dropped, whitespace
// collapsed.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToLower(text)
	text = genderRe.ReplaceAllString(text, "")
	text = legalRe.ReplaceAllString(text, "")
	text = asciiRe.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

// Fingerprint derives the identity key for a posting from its normalized
// (title, company, location) triple. Two listings that normalize to the
// same triple always collide; this is how "Data Analyst (m/w/d)" at
// "Google GmbH" deduplicates against "Data Analyst" at "Google".
func Fingerprint(title, company, location string) string {
	sig := Clean(title) + "|" + Clean(company) + "|" + Clean(location)
	sum := md5.Sum([]byte(sig))
	return hex.EncodeToString(sum[:])
}

// NormalizeLocation folds country-wide and remote markers into a single
// bucket and maps city spelling variants onto one canonical name.
func NormalizeLocation(loc string) string {
	lower := strings.ToLower(strings.TrimSpace(loc))
	switch lower {
	case "", "deutschland", "germany", "remote", "nationwide", "home office", "homeoffice":
		return "Remote/Deutschland"
	}

	// "City, State" keeps only the city
	if idx := strings.Index(loc, ","); idx >= 0 {
		loc = loc[:idx]
	}

	loc = postcodeRe.ReplaceAllString(loc, "")
	loc = strings.ReplaceAll(loc, " - ", " ")
	loc = strings.ReplaceAll(loc, "/", " ")

	locClean := strings.ToLower(strings.TrimSpace(loc))
	for key, val := range cityAliases {
		if strings.Contains(locClean, key) {
			return val
		}
	}

	return titleCase(strings.TrimSpace(loc))
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// CleanTitle strips gender suffixes and remote/location markers that do
// not change the role, improving grouping for tagging and translation.
func CleanTitle(title string) string {
	if title == "" {
		return ""
	}
	title = titleGenderRe.ReplaceAllString(title, " ")
	title = titleRemoteRe.ReplaceAllString(title, " ")
	return strings.TrimSpace(spacesRe.ReplaceAllString(title, " "))
}
