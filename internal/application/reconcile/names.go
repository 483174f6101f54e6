package reconcile

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

var shareClassAliases = map[string]string{
	"common": "Common Stock", "common stock": "Common Stock",
	"common shares": "Common Stock", "class a common": "Common Stock",
	"class a common stock": "Common Stock", "ordinary shares": "Common Stock",
	"ordinary stock": "Common Stock",
	"series seed": "Series Seed Preferred", "series seed preferred": "Series Seed Preferred",
	"series seed preferred stock": "Series Seed Preferred", "seed preferred": "Series Seed Preferred",
	"series a": "Series A Preferred", "series a preferred": "Series A Preferred",
	"series a preferred stock": "Series A Preferred",
	"series a-1": "Series A Preferred", "series a-1 preferred": "Series A Preferred",
	"series b": "Series B Preferred", "series b preferred": "Series B Preferred",
	"series b preferred stock": "Series B Preferred",
	"safe": "SAFE", "simple agreement for future equity": "SAFE",
	"convertible note": "Convertible Note", "convertible promissory note": "Convertible Note",
	"option": "Option", "stock option": "Option",
	"iso": "Option", "nso": "Option", "nqso": "Option",
}

// DefaultShareClass is the canonical common label. A bare "Common" and an undeclared
// class both land here, so they group as one class on the cap table.
const DefaultShareClass = "Common Stock"

// ShareClass maps a free-form class label onto its canonical name.
// Empty means DefaultShareClass; unknown labels are title-cased.
func ShareClass(label string) string {
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		return DefaultShareClass
	}
	if canon, ok := shareClassAliases[strings.ToLower(label)]; ok {
		return canon
	}
	return titleCase(label)
}

// IsPreferred reports whether a canonical class counts against authorized preferred.
func IsPreferred(class string) bool {
	return strings.Contains(strings.ToLower(class), "preferred")
}

// IsCommon reports whether a canonical class counts against authorized common.
func IsCommon(class string) bool {
	return strings.Contains(strings.ToLower(class), "common")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

var entitySuffixes = []string{"inc", "inc.", "llc", "l.l.c.", "ltd", "ltd.", "lp", "l.p.", "llp", "corp", "corp.", "co.", "trust", "fund"}

// CanonicalName collapses whitespace and rewrites "Last, First" as "First Last".
// Entity names such as "Acme Ventures, LLC" keep their comma form.
func CanonicalName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if strings.Count(name, ",") != 1 {
		return name
	}
	parts := strings.SplitN(name, ",", 2)
	last, first := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if last == "" || first == "" {
		return strings.Trim(name, ", ")
	}
	lower := strings.ToLower(first)
	for _, suffix := range entitySuffixes {
		if lower == suffix || strings.HasSuffix(lower, " "+suffix) {
			return name
		}
	}
	return first + " " + last
}

var extractedDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"02-Jan-2006",
}

// ParseExtractedDate accepts the date spellings extractors commonly emit.
func ParseExtractedDate(s string) (equity.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return equity.Date{}, fmt.Errorf("missing date")
	}
	if len(s) > 10 && s[4] == '-' && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	for _, layout := range extractedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return equity.DateOf(t), nil
		}
	}
	return equity.Date{}, fmt.Errorf("unparseable date %q", s)
}
