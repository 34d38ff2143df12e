// Package capitalize normalizes the casing of imported person names,
// e.g. "MARY" -> "Mary" or "o'brien" -> "O'Brien". Family names get an
// extra rule set for particles such as "van" and "de".
package capitalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// particles stay lowercase inside family names ("Ludwig van Beethoven").
var particles = map[string]bool{
	"de": true, "del": true, "della": true, "da": true, "di": true,
	"la": true, "le": true, "van": true, "von": true, "der": true,
	"den": true, "ten": true, "ter": true,
}

// Name capitalizes each word of a given name.
func Name(s string) string {
	return capitalizeWords(s, false)
}

// FamilyName capitalizes a family name, keeping name particles lowercase
// unless the particle is the entire name.
func FamilyName(s string) string {
	return capitalizeWords(s, true)
}

func capitalizeWords(s string, family bool) string {
	words := strings.Fields(strings.TrimSpace(s))
	for i, word := range words {
		lower := strings.ToLower(word)
		if family && len(words) > 1 && particles[lower] {
			words[i] = lower
			continue
		}
		words[i] = capitalizeWord(word)
	}
	return strings.Join(words, " ")
}

func capitalizeWord(word string) string {
	// hyphenated and apostrophe-joined segments are capitalized separately:
	// "anne-marie" -> "Anne-Marie", "o'brien" -> "O'Brien"
	for _, sep := range []string{"-", "'"} {
		if strings.Contains(word, sep) {
			parts := strings.Split(word, sep)
			for i, part := range parts {
				// trailing possessive stays lowercase: "andrews'"
				if part == "" || (sep == "'" && i > 0 && len(part) == 1) {
					parts[i] = strings.ToLower(part)
					continue
				}
				parts[i] = capitalizeWord(part)
			}
			return strings.Join(parts, sep)
		}
	}

	lower := strings.ToLower(word)
	if strings.HasPrefix(lower, "mc") && len(lower) > 2 {
		return "Mc" + titleCaser.String(lower[2:])
	}
	return titleCaser.String(lower)
}
