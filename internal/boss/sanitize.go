package boss

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	digitRuns     = regexp.MustCompile(`\d+`)
	hyphenRuns    = regexp.MustCompile(`-+`)
	whitespace    = regexp.MustCompile(`\s+`)
	nonSlugChars  = regexp.MustCompile(`[^a-z0-9-]`)
)

// sentinel phrases that mean "no value" rather than a literal value.
var (
	numericSentinels = map[string]struct{}{
		"":         {},
		"???":      {},
		"variable": {},
		"unknown":  {},
		"n/a":      {},
	}
	listSentinels = map[string]struct{}{
		"":     {},
		"none": {},
		"n/a":  {},
		"???":  {},
	}
)

// NewRecord builds a sanitized Record from raw template fields.
// Every sanitizer tolerates arbitrary free text; a field that cannot be
// interpreted ends up absent, never zero-valued and never an error.
func NewRecord(raw RawFields) Record {
	rec := Record{
		Name:                 strings.TrimSpace(raw.Name),
		HP:                   SanitizeInt(raw.HP),
		Exp:                  SanitizeInt(raw.Exp),
		Speed:                SanitizeInt(raw.Speed),
		Version:              sanitizeString(raw.Version),
		Location:             sanitizeString(raw.Location),
		Abilities:            SanitizeList(raw.Abilities),
		Sounds:               SanitizeList(raw.Sounds),
		Loot:                 SanitizeList(raw.Loot),
		WalksThrough:         SanitizeList(raw.WalksThrough),
		ElementalWeaknesses:  SanitizeList(raw.ElementalWeaknesses),
		ElementalResistances: SanitizeList(raw.ElementalResistances),
		Immunities:           SanitizeList(raw.Immunities),
		Resistances:          sanitizeResistances(raw.Resistances),
	}
	rec.Slug = Slugify(rec.Name)

	if class := strings.TrimSpace(raw.BosstiaryClass); class != "" {
		rec.Bosstiary = &Bosstiary{
			ClassName:     class,
			KillsRequired: BosstiaryKills(class),
		}
	}

	filename := strings.TrimSpace(raw.Image)
	if filename == "" && rec.Name != "" {
		filename = rec.Name + ".gif"
	}
	if filename != "" {
		rec.Visuals = &Visuals{Filename: &filename}
	}

	return rec
}

// Slugify derives the URL-safe storage key from a display name.
// Derivation is deterministic: same name, same slug.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = whitespace.ReplaceAllString(s, "-")
	s = nonSlugChars.ReplaceAllString(s, "")
	s = hyphenRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SanitizeInt parses a free-form numeric field.
//
//	"50,000 (estimated)" -> 50000
//	"???"                -> nil
//	"Variable"           -> nil
func SanitizeInt(v string) *int {
	v = strings.TrimSpace(v)
	if _, unknown := numericSentinels[strings.ToLower(v)]; unknown {
		return nil
	}
	v = parenthetical.ReplaceAllString(v, "")
	v = strings.ReplaceAll(v, ",", "")
	v = strings.ReplaceAll(v, " ", "")
	runs := digitRuns.FindAllString(v, -1)
	if len(runs) == 0 {
		return nil
	}
	n, err := strconv.Atoi(strings.Join(runs, ""))
	if err != nil {
		return nil
	}
	return &n
}

// SanitizeList splits comma-separated free text into trimmed elements.
// Parenthetical annotations are stripped before splitting and sentinel
// phrases yield an empty list.
func SanitizeList(v string) []string {
	v = strings.TrimSpace(v)
	if _, empty := listSentinels[strings.ToLower(v)]; empty {
		return []string{}
	}
	v = parenthetical.ReplaceAllString(v, "")
	parts := strings.Split(v, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

// BosstiaryKills maps a tier label to its required kill count.
// Unknown tiers have no requirement.
func BosstiaryKills(className string) *int {
	class := strings.ToLower(className)
	var kills int
	switch {
	case strings.Contains(class, "nemesis"):
		kills = NemesisKills
	case strings.Contains(class, "archfoe"):
		kills = ArchfoeKills
	case strings.Contains(class, "bane"):
		kills = BaneKills
	default:
		return nil
	}
	return &kills
}

func sanitizeString(v string) *string {
	v = strings.TrimSpace(v)
	if _, empty := numericSentinels[strings.ToLower(v)]; empty {
		return nil
	}
	return &v
}

func sanitizeResistances(raw map[string]string) map[string]int {
	out := make(map[string]int, len(raw))
	for element, value := range raw {
		if pct := SanitizeInt(value); pct != nil {
			out[strings.ToLower(strings.TrimSpace(element))] = *pct
		}
	}
	return out
}
