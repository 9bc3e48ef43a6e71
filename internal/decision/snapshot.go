package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"imagegate/internal/catalog"
	"imagegate/internal/safety"
)

// SnapshotVersion is the decisionJson schema version written by this build.
const SnapshotVersion = 1

const (
	VarPlatform      = "platform"
	VarCategory      = "category"
	VarAspect        = "aspect"
	VarEnergy        = "energy"
	VarIndustry      = "industry"
	VarVibe          = "vibe"
	VarTextAllowance = "textAllowance"
)

var ErrInvalidSnapshot = errors.New("invalid decision snapshot")

var allowedVariables = map[string]bool{
	VarPlatform:      true,
	VarCategory:      true,
	VarAspect:        true,
	VarEnergy:        true,
	VarIndustry:      true,
	VarVibe:          true,
	VarTextAllowance: true,
}

var safeValue = regexp.MustCompile(`^[a-z0-9_:.\-]{0,48}$`)

// Snapshot is the persisted projection of a Decision.
type Snapshot struct {
	Version int `json:"version"`
	Decision
}

// MarshalSnapshot validates d and encodes it as decisionJson.
func MarshalSnapshot(d Decision) ([]byte, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}
	b, err := json.Marshal(Snapshot{Version: SnapshotVersion, Decision: d})
	if err != nil {
		return nil, fmt.Errorf("marshal decision snapshot: %w", err)
	}
	return b, nil
}

// Validate checks that every field of d is drawn from the safe vocabulary.
func Validate(d Decision) error {
	if d.Mode == "" || !safeValue.MatchString(d.Mode) {
		return fmt.Errorf("%w: mode is not a safe token", ErrInvalidSnapshot)
	}
	if !catalog.ValidEnergy(d.Energy) {
		return fmt.Errorf("%w: unknown energy", ErrInvalidSnapshot)
	}
	if !catalog.ValidTextAllowance(d.Text.Allowance) {
		return fmt.Errorf("%w: unknown text allowance", ErrInvalidSnapshot)
	}
	if d.Text.RecommendedOverlayText != "" && !catalog.ValidOverlay(d.Category, d.Text.RecommendedOverlayText) {
		return fmt.Errorf("%w: overlay text is not a catalog phrase", ErrInvalidSnapshot)
	}
	for _, v := range []string{d.Platform, d.Aspect, d.Category, d.PromptPlan.TemplateID, d.ProviderPlan.ProviderID, d.ProviderPlan.ModelTier} {
		if !safeValue.MatchString(v) {
			return fmt.Errorf("%w: field value is not a safe token", ErrInvalidSnapshot)
		}
	}
	for _, r := range d.PromptPlan.NegativeRules {
		if !safeValue.MatchString(r) {
			return fmt.Errorf("%w: negative rule is not a safe token", ErrInvalidSnapshot)
		}
	}
	for _, r := range d.Safety.Reasons {
		if !safety.IsReason(r) {
			return fmt.Errorf("%w: unknown safety reason", ErrInvalidSnapshot)
		}
	}
	for k, v := range d.PromptPlan.Variables {
		if !allowedVariables[k] || !safeValue.MatchString(v) {
			return fmt.Errorf("%w: variable %q is not allowed", ErrInvalidSnapshot, k)
		}
	}
	if d.ProviderPlan.Notes != "" && !safeValue.MatchString(d.ProviderPlan.Notes) {
		return fmt.Errorf("%w: provider notes are not a safe token", ErrInvalidSnapshot)
	}
	return nil
}

// Reconstruct rehydrates a decision from decisionJson. Missing optional fields
// are defaulted and unsafe leftovers dropped, so old partial records still
// produce a usable decision. Only unparseable input or a future schema version
// is an error.
func Reconstruct(raw []byte, defaults Defaults) (Decision, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Decision{}, fmt.Errorf("%w: empty", ErrInvalidSnapshot)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if s.Version > SnapshotVersion || s.Version < 0 {
		return Decision{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, s.Version)
	}

	d := s.Decision
	d.Mode = lower(d.Mode)
	switch {
	case d.Mode == "":
		d.Mode = catalog.ModeGenerative
	case !safeValue.MatchString(d.Mode):
		// Kept as an unknown mode so the evaluator routes it to fallback.
		d.Mode = "unknown"
	}
	d.Platform = lower(d.Platform)
	d.Category = lower(d.Category)
	d.Aspect = strings.TrimSpace(d.Aspect)
	d.Energy = lower(d.Energy)
	if !catalog.ValidEnergy(d.Energy) {
		d.Energy = catalog.EnergyMedium
	}
	d.Text.Allowance = lower(d.Text.Allowance)
	if !catalog.ValidTextAllowance(d.Text.Allowance) {
		d.Text.Allowance = catalog.TextNone
	}
	if d.Text.RecommendedOverlayText != "" && !catalog.ValidOverlay(d.Category, d.Text.RecommendedOverlayText) {
		d.Text.RecommendedOverlayText = ""
	}

	reasons := make([]string, 0, len(d.Safety.Reasons))
	for _, r := range d.Safety.Reasons {
		if safety.IsReason(r) {
			reasons = append(reasons, r)
		}
	}
	d.Safety.Reasons = reasons

	if d.PromptPlan.TemplateID == "" || !safeValue.MatchString(d.PromptPlan.TemplateID) {
		d.PromptPlan.TemplateID = templateID(d.Category)
	}
	rules := make([]string, 0, len(d.PromptPlan.NegativeRules))
	for _, r := range d.PromptPlan.NegativeRules {
		r = lower(r)
		if safeValue.MatchString(r) && r != "" {
			rules = append(rules, r)
		}
	}
	d.PromptPlan.NegativeRules = rules
	d.PromptPlan.Variables = sanitizeVariables(d.PromptPlan.Variables)

	if d.ProviderPlan.ProviderID == "" || !safeValue.MatchString(d.ProviderPlan.ProviderID) {
		d.ProviderPlan.ProviderID = defaults.ProviderID
	}
	d.ProviderPlan.ModelTier = lower(d.ProviderPlan.ModelTier)
	if !catalog.ValidTier(d.ProviderPlan.ModelTier) {
		d.ProviderPlan.ModelTier = tierForEnergy(d.Energy, defaults.ModelTier)
	}
	if !safeValue.MatchString(d.ProviderPlan.Notes) {
		d.ProviderPlan.Notes = ""
	}
	if !safeValue.MatchString(d.Platform) {
		d.Platform = ""
	}
	if !safeValue.MatchString(d.Category) {
		d.Category = ""
	}
	if !safeValue.MatchString(d.Aspect) {
		d.Aspect = ""
	}
	return d, nil
}

func sanitizeVariables(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if !allowedVariables[k] || v == "" || !safeValue.MatchString(v) {
			continue
		}
		out[k] = v
	}
	return out
}
