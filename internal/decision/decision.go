// Package decision builds the structured plan for one generation attempt, either
// fresh from a request or by rehydrating a persisted snapshot.
package decision

import (
	"sort"
	"strings"

	"imagegate/internal/catalog"
	"imagegate/internal/safety"
)

type Text struct {
	Allowance              string `json:"allowance"`
	RecommendedOverlayText string `json:"recommendedOverlayText,omitempty"`
}

type Safety struct {
	IsAllowed    bool     `json:"isAllowed"`
	Reasons      []string `json:"reasons"`
	UsedFallback bool     `json:"usedFallback"`
}

type PromptPlan struct {
	TemplateID    string            `json:"templateId"`
	NegativeRules []string          `json:"negativeRules"`
	Variables     map[string]string `json:"variables"`
}

type ProviderPlan struct {
	ProviderID string `json:"providerId"`
	ModelTier  string `json:"modelTier"`
	Notes      string `json:"notes,omitempty"`
}

// Decision never holds free text: every field is an id from the catalog or a
// value derived from one.
type Decision struct {
	Mode         string       `json:"mode"`
	Platform     string       `json:"platform"`
	Aspect       string       `json:"aspect"`
	Category     string       `json:"category"`
	Energy       string       `json:"energy"`
	Text         Text         `json:"text"`
	Safety       Safety       `json:"safety"`
	PromptPlan   PromptPlan   `json:"promptPlan"`
	ProviderPlan ProviderPlan `json:"providerPlan"`
}

// Defaults are deployment-level values used when a request or snapshot leaves a
// field empty.
type Defaults struct {
	ProviderID string
	ModelTier  string
}

type FreshRequest struct {
	Platform      string
	Category      string
	Aspect        string
	Mode          string
	Energy        string
	TextAllowance string
	Industry      string
	Vibe          string
	NegativeRules []string
	ProviderID    string
	ModelTier     string
}

func (d Decision) Dimensions() (int, int) {
	return catalog.Dimensions(d.Aspect)
}

// ApplyVerdict records a safety result on the decision.
func (d *Decision) ApplyVerdict(res safety.Result) {
	reasons := make([]string, len(res.Reasons))
	copy(reasons, res.Reasons)
	d.Safety = Safety{
		IsAllowed:    res.Allowed(),
		Reasons:      reasons,
		UsedFallback: res.UsedFallback,
	}
}

// SafetyInput projects the decision onto the evaluator's structural inputs.
// Free text is never part of a decision, so regeneration always evaluates with
// empty business name and user text.
func (d Decision) SafetyInput() safety.Input {
	return safety.Input{
		Platform:      d.Platform,
		Category:      d.Category,
		Aspect:        d.Aspect,
		Mode:          d.Mode,
		NegativeRules: append([]string(nil), d.PromptPlan.NegativeRules...),
		PriorReasons:  append([]string(nil), d.Safety.Reasons...),
	}
}

// Synthesize builds a decision for a first generation. It performs no I/O.
func Synthesize(req FreshRequest, defaults Defaults) Decision {
	mode := lower(req.Mode)
	if mode == "" {
		mode = catalog.ModeGenerative
	}
	mode = token(mode)
	energy := lower(req.Energy)
	if !catalog.ValidEnergy(energy) {
		energy = catalog.EnergyMedium
	}
	allowance := lower(req.TextAllowance)
	if !catalog.ValidTextAllowance(allowance) {
		allowance = catalog.TextNone
	}

	d := Decision{
		Mode:     mode,
		Platform: token(lower(req.Platform)),
		Aspect:   token(strings.TrimSpace(req.Aspect)),
		Category: token(lower(req.Category)),
		Energy:   energy,
		Text:     Text{Allowance: allowance},
		Safety:   Safety{Reasons: []string{}},
	}
	d.Text.RecommendedOverlayText = overlayFor(d.Category, allowance)

	d.PromptPlan = PromptPlan{
		TemplateID:    templateID(d.Category),
		NegativeRules: negativeRules(d.Category, allowance, req.NegativeRules),
		Variables: sanitizeVariables(map[string]string{
			VarPlatform:      d.Platform,
			VarCategory:      d.Category,
			VarAspect:        d.Aspect,
			VarEnergy:        energy,
			VarIndustry:      catalog.NormalizeIndustry(lower(req.Industry)),
			VarVibe:          catalog.NormalizeVibe(lower(req.Vibe)),
			VarTextAllowance: allowance,
		}),
	}

	providerID := strings.TrimSpace(req.ProviderID)
	if !ValidProviderID(providerID) {
		providerID = defaults.ProviderID
	}
	tier := lower(req.ModelTier)
	if !catalog.ValidTier(tier) {
		tier = tierForEnergy(energy, defaults.ModelTier)
	}
	d.ProviderPlan = ProviderPlan{ProviderID: providerID, ModelTier: tier}
	return d
}

func templateID(category string) string {
	if _, ok := catalog.LookupCategory(category); !ok {
		return "generic_v1"
	}
	return category + "_v1"
}

// negativeRules merges category defaults with caller rules. Caller rules that
// are not in the catalog are dropped so decisions only ever carry known ids.
func negativeRules(category, allowance string, extra []string) []string {
	seen := map[string]bool{}
	out := []string{}
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	if c, ok := catalog.LookupCategory(category); ok {
		for _, r := range c.DefaultRules {
			add(r)
		}
	}
	if allowance == catalog.TextNone {
		add("no_text")
	}
	callerRules := make([]string, 0, len(extra))
	for _, r := range extra {
		id := lower(r)
		if _, ok := catalog.LookupRule(id); ok {
			callerRules = append(callerRules, id)
		}
	}
	sort.Strings(callerRules)
	for _, r := range callerRules {
		add(r)
	}
	return out
}

func overlayFor(category, allowance string) string {
	if allowance == catalog.TextNone {
		return ""
	}
	c, ok := catalog.LookupCategory(category)
	if !ok || len(c.Overlay) == 0 {
		return ""
	}
	return c.Overlay[0]
}

func tierForEnergy(energy, fallback string) string {
	switch energy {
	case catalog.EnergyLow:
		return catalog.TierFast
	case catalog.EnergyHigh:
		return catalog.TierPremium
	}
	if catalog.ValidTier(fallback) {
		return fallback
	}
	return catalog.TierStandard
}

// token keeps caller-supplied identifiers out of decisions unless they already
// look like catalog ids.
func token(v string) string {
	if v == "" || safeValue.MatchString(v) {
		return v
	}
	return "unknown"
}

func lower(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// OverrideProvider replaces the persisted provider choice with an explicit
// caller override. Ids that could not be persisted safely are refused.
func (d *Decision) OverrideProvider(id string) bool {
	id = strings.TrimSpace(id)
	if !ValidProviderID(id) {
		return false
	}
	d.ProviderPlan.ProviderID = id
	return true
}

// ValidProviderID reports whether id can be stored in a decision snapshot.
func ValidProviderID(id string) bool {
	return id != "" && safeValue.MatchString(id)
}
