package safety

import (
	"strings"
	"unicode"
)

var blockedTerms = []string{
	"nude", "naked", "nsfw", "porn", "explicit",
	"gore", "beheading", "massacre",
	"firearm", "rifle", "ammunition", "explosive",
	"cocaine", "heroin", "meth",
	"swastika", "white power",
	"child model", "underage",
}

var sensitiveTerms = []string{
	"celebrity", "famous person", "lookalike",
	"logo", "trademark", "copyright",
	"before and after", "weight loss", "cure",
	"election", "candidate",
	"alcohol", "casino", "betting",
}

// matchesAny reports whether text contains any term on word boundaries.
func matchesAny(text string, terms []string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	padded := " " + strings.Join(words(text), " ") + " "
	for _, t := range terms {
		if strings.Contains(padded, " "+t+" ") {
			return true
		}
	}
	return false
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
