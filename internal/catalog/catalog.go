// Package catalog holds the enumerated vocabulary the image engine works in.
// Every value here is a safe field: it can be logged, persisted and shown.
package catalog

import "sort"

const (
	ModeGenerative = "generative"
	ModeTemplate   = "template"

	EnergyLow    = "low"
	EnergyMedium = "medium"
	EnergyHigh   = "high"

	TextNone     = "none"
	TextMinimal  = "minimal"
	TextHeadline = "headline"

	TierFast     = "fast"
	TierStandard = "standard"
	TierPremium  = "premium"
)

type Platform struct {
	ID      string
	Display string
	Aspects []string
}

type Aspect struct {
	ID      string
	Display string
	Width   int
	Height  int
}

type Category struct {
	ID      string
	Noun    string
	Blocked bool
	// DefaultRules are negative rule ids applied to every decision in the category.
	DefaultRules []string
	Overlay      []string
}

type Rule struct {
	ID         string
	BlockLevel bool
	Phrase     string
}

var platforms = map[string]Platform{
	"instagram":       {ID: "instagram", Display: "Instagram", Aspects: []string{"1:1", "4:5", "9:16"}},
	"facebook":        {ID: "facebook", Display: "Facebook", Aspects: []string{"1:1", "4:5", "1.91:1", "16:9"}},
	"linkedin":        {ID: "linkedin", Display: "LinkedIn", Aspects: []string{"1:1", "1.91:1", "4:5"}},
	"x":               {ID: "x", Display: "X", Aspects: []string{"16:9", "1:1"}},
	"pinterest":       {ID: "pinterest", Display: "Pinterest", Aspects: []string{"2:3", "1:1"}},
	"tiktok":          {ID: "tiktok", Display: "TikTok", Aspects: []string{"9:16"}},
	"google_business": {ID: "google_business", Display: "Google Business Profile", Aspects: []string{"4:5", "1:1", "16:9"}},
	"website":         {ID: "website", Display: "the website", Aspects: []string{"16:9", "1:1", "4:5", "1.91:1", "2:3"}},
}

var aspects = map[string]Aspect{
	"1:1":    {ID: "1:1", Display: "square", Width: 1080, Height: 1080},
	"4:5":    {ID: "4:5", Display: "portrait", Width: 1080, Height: 1350},
	"9:16":   {ID: "9:16", Display: "vertical", Width: 1080, Height: 1920},
	"16:9":   {ID: "16:9", Display: "widescreen", Width: 1920, Height: 1080},
	"1.91:1": {ID: "1.91:1", Display: "landscape", Width: 1200, Height: 628},
	"2:3":    {ID: "2:3", Display: "tall", Width: 1000, Height: 1500},
}

var categories = map[string]Category{
	"product": {ID: "product", Noun: "product showcase",
		DefaultRules: []string{"no_watermark", "no_brand_marks"}, Overlay: []string{"New arrival", "Shop now"}},
	"food": {ID: "food", Noun: "food",
		DefaultRules: []string{"no_watermark", "no_hands_closeup"}, Overlay: []string{"Fresh today", "Order now"}},
	"service": {ID: "service", Noun: "service",
		DefaultRules: []string{"no_watermark", "no_logos"}, Overlay: []string{"Book today", "Here to help"}},
	"event": {ID: "event", Noun: "event",
		DefaultRules: []string{"no_watermark"}, Overlay: []string{"Save the date", "Join us"}},
	"promotion": {ID: "promotion", Noun: "promotional",
		DefaultRules: []string{"no_watermark", "no_brand_marks"}, Overlay: []string{"Limited time", "Special offer"}},
	"team": {ID: "team", Noun: "workplace",
		DefaultRules: []string{"no_watermark", "no_faces"}, Overlay: []string{"Meet the team"}},
	"behind_the_scenes": {ID: "behind_the_scenes", Noun: "behind-the-scenes",
		DefaultRules: []string{"no_watermark", "no_faces"}, Overlay: []string{"Behind the scenes"}},
	"testimonial": {ID: "testimonial", Noun: "testimonial background",
		DefaultRules: []string{"no_watermark", "no_faces", "no_clutter"}, Overlay: []string{"What our customers say"}},
	"seasonal": {ID: "seasonal", Noun: "seasonal",
		DefaultRules: []string{"no_watermark"}, Overlay: []string{"Happy holidays", "Seasonal favorites"}},
	"educational": {ID: "educational", Noun: "informational",
		DefaultRules: []string{"no_watermark", "no_clutter"}, Overlay: []string{"Did you know?", "Quick tip"}},
	"announcement": {ID: "announcement", Noun: "announcement",
		DefaultRules: []string{"no_watermark"}, Overlay: []string{"Big news", "Now open"}},

	"adult":     {ID: "adult", Noun: "restricted", Blocked: true},
	"weapons":   {ID: "weapons", Noun: "restricted", Blocked: true},
	"drugs":     {ID: "drugs", Noun: "restricted", Blocked: true},
	"political": {ID: "political", Noun: "restricted", Blocked: true},
	"hate":      {ID: "hate", Noun: "restricted", Blocked: true},
}

var rules = map[string]Rule{
	"no_text":          {ID: "no_text", Phrase: "text, letters, captions, typography"},
	"no_faces":         {ID: "no_faces", Phrase: "identifiable faces, portraits"},
	"no_logos":         {ID: "no_logos", Phrase: "logos, emblems"},
	"no_hands_closeup": {ID: "no_hands_closeup", Phrase: "close-up hands, distorted fingers"},
	"no_brand_marks":   {ID: "no_brand_marks", Phrase: "brand names, trademarks, labels"},
	"no_clutter":       {ID: "no_clutter", Phrase: "cluttered background, busy composition"},
	"no_watermark":     {ID: "no_watermark", Phrase: "watermark, signature, stamp"},

	"real_person_likeness":   {ID: "real_person_likeness", BlockLevel: true},
	"minors_depicted":        {ID: "minors_depicted", BlockLevel: true},
	"trademark_reproduction": {ID: "trademark_reproduction", BlockLevel: true},
	"forbid_generation":      {ID: "forbid_generation", BlockLevel: true},
}

var industries = map[string]string{
	"restaurant":            "restaurant",
	"retail":                "retail shop",
	"salon":                 "beauty salon",
	"fitness":               "fitness studio",
	"real_estate":           "real estate agency",
	"professional_services": "professional services firm",
	"healthcare":            "healthcare practice",
	"home_services":         "home services business",
	"automotive":            "automotive business",
	"hospitality":           "hospitality venue",
	"other":                 "local business",
}

var vibes = map[string]string{
	"warm":    "warm, inviting",
	"bold":    "bold, high-contrast",
	"minimal": "clean, minimal",
	"playful": "playful, colorful",
	"elegant": "elegant, refined",
	"natural": "natural, soft daylight",
}

var modes = map[string]bool{ModeGenerative: true, ModeTemplate: true}

var energies = map[string]string{
	EnergyLow:    "calm, understated",
	EnergyMedium: "balanced, lively",
	EnergyHigh:   "dynamic, energetic",
}

var allowances = map[string]bool{TextNone: true, TextMinimal: true, TextHeadline: true}

var tiers = map[string]bool{TierFast: true, TierStandard: true, TierPremium: true}

func LookupPlatform(id string) (Platform, bool) {
	p, ok := platforms[id]
	return p, ok
}

func LookupAspect(id string) (Aspect, bool) {
	a, ok := aspects[id]
	return a, ok
}

func LookupCategory(id string) (Category, bool) {
	c, ok := categories[id]
	return c, ok
}

func LookupRule(id string) (Rule, bool) {
	r, ok := rules[id]
	return r, ok
}

func PlatformSupports(platformID, aspectID string) bool {
	p, ok := platforms[platformID]
	if !ok {
		return false
	}
	for _, a := range p.Aspects {
		if a == aspectID {
			return true
		}
	}
	return false
}

// Dimensions returns the pixel size for an aspect id, falling back to square.
func Dimensions(aspectID string) (int, int) {
	if a, ok := aspects[aspectID]; ok {
		return a.Width, a.Height
	}
	sq := aspects["1:1"]
	return sq.Width, sq.Height
}

func IndustryPhrase(id string) (string, bool) {
	v, ok := industries[id]
	return v, ok
}

func VibePhrase(id string) (string, bool) {
	v, ok := vibes[id]
	return v, ok
}

func EnergyPhrase(id string) (string, bool) {
	v, ok := energies[id]
	return v, ok
}

func NormalizeIndustry(id string) string {
	if id == "" {
		return ""
	}
	if _, ok := industries[id]; ok {
		return id
	}
	return "other"
}

func NormalizeVibe(id string) string {
	if _, ok := vibes[id]; ok {
		return id
	}
	return ""
}

func ValidMode(id string) bool { return modes[id] }
func ValidEnergy(id string) bool {
	_, ok := energies[id]
	return ok
}
func ValidTextAllowance(id string) bool { return allowances[id] }
func ValidTier(id string) bool { return tiers[id] }

// ValidOverlay reports whether text is one of the fixed overlay phrases of the category.
func ValidOverlay(categoryID, text string) bool {
	c, ok := categories[categoryID]
	if !ok {
		return false
	}
	for _, o := range c.Overlay {
		if o == text {
			return true
		}
	}
	return false
}

func PlatformIDs() []string { return sortedKeys(platforms) }
func AspectIDs() []string { return sortedKeys(aspects) }
func CategoryIDs() []string { return sortedKeys(categories) }
func RuleIDs() []string { return sortedKeys(rules) }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
