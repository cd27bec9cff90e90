package contact

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// word mirrors \w but accepts non-ASCII letters.
const word = `[\p{L}\p{N}_]+`

// dash matches hyphen, en-dash and em-dash.
const dash = `[-\x{2013}\x{2014}]`

// nameRules are tried in this order; the first rule whose candidate survives
// cleanup wins. The capture group of each pattern is the candidate.
var nameRules = []struct {
	name string
	re   *regexp.Regexp
}{
	{"leader_dash", regexp.MustCompile(`(?i)^\s*(` + word + `)\s*` + dash + `\s*.+`)},
	{"for_name", regexp.MustCompile(`(?i)\b(?:cleaning|service)\s+for\s+([\p{L}\p{N}_\s]+?)(?:\s*` + dash + `|$)`)},
	{"last_first_dash", regexp.MustCompile(`(?i)^\s*(` + word + `,\s*` + word + `)\s*` + dash)},
	{"name_paren", regexp.MustCompile(`(?i)^\s*([\p{L}\p{N}_\s]+?)\s*\(`)},
	{"leader_location", regexp.MustCompile(`(?i)^\s*(` + word + `)\s+(?:residence|house|home|property)(?:[^\p{L}\p{N}_]|$)`)},
	// Capitalization is the signal here, so this rule is case-sensitive.
	{"capitalized_first", regexp.MustCompile(`^(\p{Lu}\p{Ll}+)(?:[^\p{L}\p{N}_]|$)`)},
}

var placeholderTitles = map[string]struct{}{
	"appointment": {},
	"cleaning":    {},
	"service":     {},
}

var rejectedCandidates = map[string]struct{}{
	"cleaning":    {},
	"service":     {},
	"appointment": {},
	"recurring":   {},
}

var disallowedRe = regexp.MustCompile(`[^\p{L}\s,.]`)

// Extraction is the extracted name together with the rule that produced it.
// Rule is a nameRules name, "fallback", "placeholder" or "none".
type Extraction struct {
	Name string
	Rule string
}

// ExtractName returns a best-guess display name from a free-text appointment
// title, or Unknown. It is pure and safe for concurrent use.
func ExtractName(title string) string {
	return Explain(title).Name
}

// Explain is ExtractName plus the name of the rule that matched.
func Explain(title string) (out Extraction) {
	defer func() {
		if r := recover(); r != nil {
			out = Extraction{Name: Unknown, Rule: "none"}
		}
	}()

	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return Extraction{Name: Unknown, Rule: "placeholder"}
	}
	if _, ok := placeholderTitles[strings.ToLower(trimmed)]; ok {
		return Extraction{Name: Unknown, Rule: "placeholder"}
	}

	for _, rule := range nameRules {
		m := rule.re.FindStringSubmatch(title)
		if len(m) < 2 {
			continue
		}
		if name, ok := cleanCandidate(m[1]); ok {
			return Extraction{Name: name, Rule: rule.name}
		}
	}

	if name, ok := fallbackName(title); ok {
		return Extraction{Name: name, Rule: "fallback"}
	}
	return Extraction{Name: Unknown, Rule: "none"}
}

func cleanCandidate(raw string) (string, bool) {
	s := strings.TrimSpace(disallowedRe.ReplaceAllString(raw, ""))
	if utf8.RuneCountInString(s) <= 1 {
		return "", false
	}
	if _, ok := rejectedCandidates[strings.ToLower(s)]; ok {
		return "", false
	}
	return titleCase(s), true
}

func fallbackName(title string) (string, bool) {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return "", false
	}
	first := fields[0]
	if utf8.RuneCountInString(first) <= 1 {
		return "", false
	}
	r, _ := utf8.DecodeRuneInString(first)
	if !unicode.IsUpper(r) {
		return "", false
	}
	return titleCase(first), true
}

// titleCase capitalizes each whitespace-delimited word and lowercases the rest.
// Runs of whitespace collapse to a single space.
func titleCase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		r, size := utf8.DecodeRuneInString(f)
		fields[i] = string(unicode.ToUpper(r)) + strings.ToLower(f[size:])
	}
	return strings.Join(fields, " ")
}
