package normalize

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Transform is one step of free-text cleanup. Every transform is pure and
// idempotent: applying it twice gives the same result as applying it once.
type Transform struct {
	Name  string
	Apply func(string) string
}

// Pipeline is the ordered cleanup applied to payee names and purpose text.
// Encoding repair runs first so the later patterns see real umlauts.
var Pipeline = []Transform{
	{Name: "repair-encoding", Apply: RepairEncoding},
	{Name: "strip-addresses", Apply: StripAddresses},
	{Name: "strip-timestamps", Apply: StripTimestamps},
	{Name: "strip-reference-codes", Apply: StripReferenceCodes},
	{Name: "strip-boilerplate", Apply: StripBoilerplate},
	{Name: "collapse-space", Apply: CollapseSpace},
}

// Clean runs s through Pipeline.
func Clean(s string) string {
	for _, t := range Pipeline {
		s = t.Apply(s)
	}
	return s
}

// DefaultUsageLength caps the combined usage text.
const DefaultUsageLength = 50

// Usage combines a cleaned payee name and purpose into the usage text of a
// transaction. When one segment already contains the other only the longer
// one is kept. The result is capped at max runes.
func Usage(name, purpose string, max int) string {
	name, purpose = Clean(name), Clean(purpose)

	var s string
	ln, lp := strings.ToLower(name), strings.ToLower(purpose)
	switch {
	case name == "":
		s = purpose
	case purpose == "":
		s = name
	case strings.Contains(lp, ln):
		s = purpose
	case strings.Contains(ln, lp):
		s = name
	default:
		s = name + " " + purpose
	}
	return Truncate(s, max)
}

// Truncate cuts s to at most max runes and trims trailing space.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}

var mojibake = strings.NewReplacer(
	"Ã¤", "ä",
	"Ã¶", "ö",
	"Ã¼", "ü",
	"Ã„", "Ä",
	"Ã–", "Ö",
	"Ãœ", "Ü",
	"ÃŸ", "ß",
	"Ã©", "é",
	"Ã¨", "è",
	"Ã¡", "á",
	"Ã§", "ç",
	"Ã±", "ñ",
	"â‚¬", "€",
	"â€“", "–",
	"â€™", "’",
)

// RepairEncoding fixes UTF-8 text that was decoded as Windows-1252 somewhere
// upstream ("MÃ¼ller" -> "Müller") and composes decomposed umlauts.
func RepairEncoding(s string) string {
	return norm.NFC.String(mojibake.Replace(s))
}

var addressPatterns = []*regexp.Regexp{
	// Hauptstr. 12, Lindenallee 3a, Marktplatz 5
	regexp.MustCompile(`(?i)[\p{L}-]*(?:stra(?:ß|ss)e|str\.|weg|allee|platz|gasse|damm)\s*\d+\s?[a-z]?\b,?`),
	// 10115 Berlin
	regexp.MustCompile(`\b\d{5}\s+\p{Lu}[\p{L}-]*(?:\s+\([^)]*\))?`),
}

// StripAddresses removes street addresses and postcode/city fragments.
func StripAddresses(s string) string {
	for _, re := range addressPatterns {
		s = re.ReplaceAllString(s, " ")
	}
	return s
}

var timestampPatterns = []*regexp.Regexp{
	// 2024-01-05, 2024-01-05T10:22:33
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[T ]\d{1,2}:\d{2}(?::\d{2})?)?\b`),
	// 05.01.2024, 05.01.24 10:22, 05.01.2024 um 10.22 Uhr
	regexp.MustCompile(`(?i)\b\d{1,2}\.\d{1,2}\.\d{2,4}(?:\s+(?:um\s+)?\d{1,2}[:.]\d{2}(?:[:.]\d{2})?)?(?:\s*uhr)?`),
	// 10:22, 10:22:33 Uhr
	regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?::\d{2})?(?:\s*uhr)?`),
}

// StripTimestamps removes embedded dates and clock times.
func StripTimestamps(s string) string {
	for _, re := range timestampPatterns {
		s = re.ReplaceAllString(s, " ")
	}
	return s
}

// referenceToken matches a whitespace-delimited token carrying six or more
// consecutive digits: IBANs, mandate and card references, transaction ids.
var referenceToken = regexp.MustCompile(`\S*\d{6,}\S*`)

// StripReferenceCodes removes long numeric reference tokens.
func StripReferenceCodes(s string) string {
	return referenceToken.ReplaceAllString(s, " ")
}

var boilerplatePhrases = []string{
	"SEPA-Lastschrift",
	"SEPA Lastschrift",
	"SEPA-Überweisung",
	"SEPA Überweisung",
	"SEPA-Gutschrift",
	"SEPA Gutschrift",
	"SEPA-Basislastschrift",
	"Basislastschrift",
	"Lastschrift",
	"Überweisung",
	"Gutschrift",
	"Dauerauftrag",
	"Kartenzahlung",
	"girocard",
	"Kartenzahlung/-abrechnung",
	"End-to-End-Ref.:",
	"Mandatsref.:",
	"Gläubiger-ID:",
	"Folgenr.",
	"Verfalld.",
	"NOTPROVIDED",
	"EREF+",
	"MREF+",
	"CRED+",
	"SVWZ+",
	"ABWA+",
	"KREF+",
	"IBAN:",
	"SEPA",
}

var (
	boilerplate = buildBoilerplate(boilerplatePhrases)
	bicLabel    = regexp.MustCompile(`\bBIC:?\s*[A-Z0-9]{8,11}\b`)
)

func buildBoilerplate(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
		if c := p[len(p)-1]; 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' {
			quoted[i] += `\b` // "SEPA" must not eat the start of "Separate"
		}
	}
	// Longest alternatives first so "SEPA-Lastschrift" wins over "SEPA".
	slices.SortStableFunc(quoted, func(a, b string) int { return len(b) - len(a) })
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
}

// StripBoilerplate removes payment-scheme labels and booking-type phrases
// that carry no information about the counterparty.
func StripBoilerplate(s string) string {
	s = bicLabel.ReplaceAllString(s, " ")
	return boilerplate.ReplaceAllString(s, " ")
}

// CollapseSpace trims s and folds runs of whitespace and dangling
// separators into single spaces.
func CollapseSpace(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ",;/|")
		if f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}
