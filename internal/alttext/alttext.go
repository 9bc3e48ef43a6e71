// Package alttext produces accessibility captions from catalog ids only.
package alttext

import (
	"strings"

	"imagegate/internal/catalog"
)

const generic = "Marketing image prepared for social media."

// Build never fails and never echoes its arguments: unknown ids fall back to
// fixed wording.
func Build(platform, category, aspect string) string {
	words := make([]string, 0, 4)
	if a, ok := catalog.LookupAspect(strings.TrimSpace(aspect)); ok {
		words = append(words, a.Display)
	}
	if c, ok := catalog.LookupCategory(normalize(category)); ok && !c.Blocked {
		words = append(words, c.Noun)
	}
	if len(words) == 0 {
		words = append(words, "marketing")
	}
	words = append(words, "image prepared for")

	where := "social media"
	if p, ok := catalog.LookupPlatform(normalize(platform)); ok {
		where = p.Display
	}
	out := strings.Join(words, " ") + " " + where + "."
	return strings.ToUpper(out[:1]) + out[1:]
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
