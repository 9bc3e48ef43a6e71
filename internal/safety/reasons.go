package safety

import "strings"

const (
	ReasonCategoryBlocked     = "category_blocked"
	ReasonRuleBlocked         = "rule_blocked"
	ReasonUserTextBlocked     = "user_text_blocked_term"
	ReasonBusinessNameBlocked = "business_name_blocked_term"
	ReasonPriorBlock          = "prior_block"

	ReasonModeTemplate       = "mode_template"
	ReasonUnknownMode        = "unknown_mode"
	ReasonUnknownPlatform    = "unknown_platform"
	ReasonUnknownCategory    = "unknown_category"
	ReasonUnknownAspect      = "unknown_aspect"
	ReasonAspectNotSupported = "aspect_not_supported_for_platform"
	ReasonUnknownRule        = "unknown_negative_rule"
	ReasonTooManyRules       = "too_many_negative_rules"
	ReasonUserTextSensitive  = "user_text_sensitive_term"
	ReasonPriorFallback      = "prior_fallback"
)

type reasonInfo struct {
	level       Verdict
	description string
}

var reasonTable = map[string]reasonInfo{
	ReasonCategoryBlocked:     {VerdictBlock, "the content category is not eligible for image generation"},
	ReasonRuleBlocked:         {VerdictBlock, "a content rule forbids generating this image"},
	ReasonUserTextBlocked:     {VerdictBlock, "the request described restricted content"},
	ReasonBusinessNameBlocked: {VerdictBlock, "the business profile matched restricted content"},
	ReasonPriorBlock:          {VerdictBlock, "this request was previously blocked by safety policy"},

	ReasonModeTemplate:       {VerdictFallback, "this request is configured to use a stock template"},
	ReasonUnknownMode:        {VerdictFallback, "the generation mode is not recognized"},
	ReasonUnknownPlatform:    {VerdictFallback, "the platform is not supported"},
	ReasonUnknownCategory:    {VerdictFallback, "the content category is not supported"},
	ReasonUnknownAspect:      {VerdictFallback, "the aspect ratio is not supported"},
	ReasonAspectNotSupported: {VerdictFallback, "the aspect ratio is not available for this platform"},
	ReasonUnknownRule:        {VerdictFallback, "the request carries a content rule that is no longer recognized"},
	ReasonTooManyRules:       {VerdictFallback, "the request carries too many content rules"},
	ReasonUserTextSensitive:  {VerdictFallback, "the request mentioned content that needs a safer template"},
	ReasonPriorFallback:      {VerdictFallback, "this request previously required a safer template"},
}

func levelOf(code string) Verdict {
	if info, ok := reasonTable[code]; ok {
		return info.level
	}
	return VerdictFallback
}

// Describe returns the fixed, display-safe description of a reason code.
func Describe(code string) string {
	if info, ok := reasonTable[code]; ok {
		return info.description
	}
	return "an unrecognized safety condition applied"
}

// IsReason reports whether code is a reason this evaluator can emit.
func IsReason(code string) bool {
	_, ok := reasonTable[code]
	return ok
}

func describe(v Verdict, reasons []string) string {
	if v == VerdictAllow {
		return "Allowed: all safety checks passed."
	}
	parts := make([]string, 0, len(reasons))
	for _, code := range reasons {
		if levelOf(code) != v {
			continue
		}
		parts = append(parts, Describe(code))
	}
	prefix := "Fallback: "
	if v == VerdictBlock {
		prefix = "Blocked: "
	}
	return prefix + strings.Join(parts, "; ") + "."
}
