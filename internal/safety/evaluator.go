package safety

import (
	"sort"
	"strings"

	"imagegate/internal/catalog"
)

type Verdict string

const (
	VerdictAllow    Verdict = "allow"
	VerdictFallback Verdict = "fallback"
	VerdictBlock    Verdict = "block"
)

// MaxNegativeRules caps how many negative rules a decision may carry before it is
// sent to the template fallback instead of a provider.
const MaxNegativeRules = 12

type Input struct {
	Platform      string
	Category      string
	Aspect        string
	Mode          string
	NegativeRules []string
	BusinessName  string
	UserText      string
	// PriorReasons are reason codes from a previously persisted verdict.
	PriorReasons []string
}

type Result struct {
	Verdict      Verdict
	Reasons      []string
	Tags         []string
	UsedFallback bool
	ReasonSafe   string
}

func (r Result) Allowed() bool {
	return r.Verdict == VerdictAllow
}

// Evaluate is a pure function of its input. It never looks at the clock, the
// network or any mutable state, so replaying the same structural fields always
// yields the same verdict.
func Evaluate(in Input) Result {
	var ev evaluation

	platform := normalize(in.Platform)
	category := normalize(in.Category)
	aspect := strings.TrimSpace(in.Aspect)
	mode := normalize(in.Mode)
	if mode == "" {
		mode = catalog.ModeGenerative
	}

	switch {
	case mode == catalog.ModeTemplate:
		ev.add(ReasonModeTemplate)
	case !catalog.ValidMode(mode):
		ev.add(ReasonUnknownMode)
	}

	if _, ok := catalog.LookupPlatform(platform); !ok {
		ev.add(ReasonUnknownPlatform)
	}
	if c, ok := catalog.LookupCategory(category); !ok {
		ev.add(ReasonUnknownCategory)
	} else if c.Blocked {
		ev.add(ReasonCategoryBlocked)
	}
	if _, ok := catalog.LookupAspect(aspect); !ok {
		ev.add(ReasonUnknownAspect)
	} else if _, ok := catalog.LookupPlatform(platform); ok && !catalog.PlatformSupports(platform, aspect) {
		ev.add(ReasonAspectNotSupported)
	}

	if len(in.NegativeRules) > MaxNegativeRules {
		ev.add(ReasonTooManyRules)
	}
	ruleTags := make([]string, 0, len(in.NegativeRules))
	for _, id := range in.NegativeRules {
		r, ok := catalog.LookupRule(normalize(id))
		if !ok {
			ev.add(ReasonUnknownRule)
			continue
		}
		ruleTags = append(ruleTags, "rule:"+r.ID)
		if r.BlockLevel {
			ev.add(ReasonRuleBlocked)
		}
	}

	if matchesAny(in.BusinessName, blockedTerms) {
		ev.add(ReasonBusinessNameBlocked)
	}
	if matchesAny(in.UserText, blockedTerms) {
		ev.add(ReasonUserTextBlocked)
	} else if matchesAny(in.UserText, sensitiveTerms) {
		ev.add(ReasonUserTextSensitive)
	}

	for _, code := range in.PriorReasons {
		switch code {
		case ReasonUserTextBlocked, ReasonBusinessNameBlocked, ReasonPriorBlock:
			ev.add(ReasonPriorBlock)
		case ReasonUserTextSensitive, ReasonPriorFallback:
			ev.add(ReasonPriorFallback)
		}
	}

	verdict := ev.verdict()
	tags := []string{
		"platform:" + tagValue(platform),
		"category:" + tagValue(category),
		"aspect:" + tagValue(aspect),
		"mode:" + tagValue(mode),
		"verdict:" + string(verdict),
	}
	tags = append(tags, ruleTags...)

	return Result{
		Verdict:      verdict,
		Reasons:      ev.reasons,
		Tags:         dedupeSorted(tags),
		UsedFallback: verdict != VerdictAllow,
		ReasonSafe:   describe(verdict, ev.reasons),
	}
}

type evaluation struct {
	reasons []string
	seen    map[string]bool
}

func (e *evaluation) add(code string) {
	if e.seen == nil {
		e.seen = map[string]bool{}
	}
	if e.seen[code] {
		return
	}
	e.seen[code] = true
	e.reasons = append(e.reasons, code)
}

// verdict applies the dominance order block > fallback > allow.
func (e *evaluation) verdict() Verdict {
	out := VerdictAllow
	for _, code := range e.reasons {
		switch levelOf(code) {
		case VerdictBlock:
			return VerdictBlock
		case VerdictFallback:
			out = VerdictFallback
		}
	}
	return out
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// tagValue keeps tags inside the catalog vocabulary; anything else is reported
// as unknown rather than echoed back.
func tagValue(v string) string {
	if v == "" {
		return "none"
	}
	if _, ok := catalog.LookupPlatform(v); ok {
		return v
	}
	if _, ok := catalog.LookupCategory(v); ok {
		return v
	}
	if _, ok := catalog.LookupAspect(v); ok {
		return v
	}
	if catalog.ValidMode(v) {
		return v
	}
	return "unknown"
}

func dedupeSorted(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	for i, v := range in {
		if i > 0 && v == in[i-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}
