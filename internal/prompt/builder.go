// Package prompt renders provider prompts from a decision. The output lives only
// in memory for one pipeline run.
package prompt

import (
	"errors"
	"strings"

	"imagegate/internal/catalog"
	"imagegate/internal/decision"
	"imagegate/internal/safety"
)

var ErrNotAllowed = errors.New("prompt requested for a non-allow verdict")

type Prompt struct {
	Prompt   Text
	Negative Text
}

// Build is deterministic: the same decision and verdict always produce the same
// text.
func Build(d decision.Decision, verdict safety.Verdict) (Prompt, error) {
	if verdict != safety.VerdictAllow {
		return Prompt{}, ErrNotAllowed
	}

	noun := "marketing"
	if c, ok := catalog.LookupCategory(d.Category); ok {
		noun = c.Noun
	}
	shape := "square"
	if a, ok := catalog.LookupAspect(d.Aspect); ok {
		shape = a.Display
	}
	platform := "social media"
	if p, ok := catalog.LookupPlatform(d.Platform); ok {
		platform = p.Display
	}

	var b strings.Builder
	b.WriteString("A professional ")
	b.WriteString(shape)
	b.WriteString(" ")
	b.WriteString(noun)
	b.WriteString(" photograph for a ")
	if phrase, ok := catalog.IndustryPhrase(d.PromptPlan.Variables[decision.VarIndustry]); ok {
		b.WriteString(phrase)
	} else {
		b.WriteString("local business")
	}
	b.WriteString(", composed for ")
	b.WriteString(platform)
	b.WriteString(".")

	if phrase, ok := catalog.VibePhrase(d.PromptPlan.Variables[decision.VarVibe]); ok {
		b.WriteString(" Mood: ")
		b.WriteString(phrase)
		b.WriteString(".")
	}
	if phrase, ok := catalog.EnergyPhrase(d.Energy); ok {
		b.WriteString(" Energy: ")
		b.WriteString(phrase)
		b.WriteString(".")
	}

	switch d.Text.Allowance {
	case catalog.TextHeadline, catalog.TextMinimal:
		if d.Text.RecommendedOverlayText != "" && catalog.ValidOverlay(d.Category, d.Text.RecommendedOverlayText) {
			b.WriteString(` Leave clear space for the short caption "`)
			b.WriteString(d.Text.RecommendedOverlayText)
			b.WriteString(`".`)
		} else {
			b.WriteString(" Leave clear space for a short caption.")
		}
	default:
		b.WriteString(" No text in the image.")
	}
	b.WriteString(" High detail, natural lighting, realistic colors.")

	negatives := []string{"low quality", "blurry", "distorted"}
	for _, id := range d.PromptPlan.NegativeRules {
		if r, ok := catalog.LookupRule(id); ok && r.Phrase != "" {
			negatives = append(negatives, r.Phrase)
		}
	}

	return Prompt{
		Prompt:   Text{s: b.String()},
		Negative: Text{s: strings.Join(negatives, ", ")},
	}, nil
}
