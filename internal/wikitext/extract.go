package wikitext

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tibialore/boss-sync/internal/boss"
)

// ErrNoInfobox is returned when the markup carries no recognizable boss
// template. Callers treat it as a per-item failure, never as fatal.
var ErrNoInfobox = errors.New("no boss infobox template found")

const (
	primaryTemplate   = "Infobox Boss"
	secondaryTemplate = "Infobox Creature"
)

// canonical field targets for the synonym table.
const (
	fieldName           = "name"
	fieldHP             = "hp"
	fieldExp            = "exp"
	fieldSpeed          = "speed"
	fieldVersion        = "version"
	fieldLocation       = "location"
	fieldAbilities      = "abilities"
	fieldSounds         = "sounds"
	fieldLoot           = "loot"
	fieldWalksThrough   = "walks_through"
	fieldWeaknesses     = "elemental_weaknesses"
	fieldResistantTo    = "elemental_resistances"
	fieldImmunities     = "immunities"
	fieldImage          = "image"
	fieldBosstiaryClass = "bosstiary_class"
)

// fieldSynonyms maps the many spellings seen in hand-edited infoboxes onto
// canonical fields. Unknown spellings are ignored, which keeps the extractor
// forward-compatible with new wiki fields.
var fieldSynonyms = map[string]string{
	"name":            fieldName,
	"hp":              fieldHP,
	"hitpoints":       fieldHP,
	"health":          fieldHP,
	"exp":             fieldExp,
	"experience":      fieldExp,
	"xp":              fieldExp,
	"speed":           fieldSpeed,
	"version":         fieldVersion,
	"implemented":     fieldVersion,
	"location":        fieldLocation,
	"abilities":       fieldAbilities,
	"sounds":          fieldSounds,
	"loot":            fieldLoot,
	"walks through":   fieldWalksThrough,
	"walksthrough":    fieldWalksThrough,
	"walks_through":   fieldWalksThrough,
	"weak to":         fieldWeaknesses,
	"weakness":        fieldWeaknesses,
	"weak":            fieldWeaknesses,
	"strong to":       fieldResistantTo,
	"resistance":      fieldResistantTo,
	"resistant":       fieldResistantTo,
	"immunities":      fieldImmunities,
	"immunity":        fieldImmunities,
	"immune":          fieldImmunities,
	"immune to":       fieldImmunities,
	"image":           fieldImage,
	"img":             fieldImage,
	"picture":         fieldImage,
	"bosstiaryclass":  fieldBosstiaryClass,
	"bosstiary class": fieldBosstiaryClass,
	"bosstiary_class": fieldBosstiaryClass,
}

// listFields concatenate when the same field appears more than once in a
// single template.
var listFields = map[string]bool{
	fieldAbilities:    true,
	fieldSounds:       true,
	fieldLoot:         true,
	fieldWalksThrough: true,
	fieldWeaknesses:   true,
	fieldResistantTo:  true,
	fieldImmunities:   true,
}

// elementFields feed the per-element resistance percentage map.
var elementFields = map[string]bool{
	"physical":  true,
	"earth":     true,
	"energy":    true,
	"ice":       true,
	"fire":      true,
	"death":     true,
	"holy":      true,
	"drown":     true,
	"lifedrain": true,
}

var (
	pipedLink    = regexp.MustCompile(`\[\[[^\]|]*\|([^\]]*)\]\]`)
	bareLink     = regexp.MustCompile(`\[\[([^\]]*)\]\]`)
	lineBreakTag = regexp.MustCompile(`(?i)<br\s*/?\s*>`)
	residualTag  = regexp.MustCompile(`<[^>]*>`)
	filePrefix   = regexp.MustCompile(`(?i)^:?(file|image):`)
)

// Extract locates the boss infobox in the markup and maps its fields onto a
// sanitized record. fallbackName (normally the page title) is used when the
// template itself does not name the boss; an empty name is not an error at
// this layer.
func Extract(markup, fallbackName string) (boss.Record, error) {
	if strings.TrimSpace(markup) == "" {
		return boss.Record{}, fmt.Errorf("empty wikitext: %w", ErrNoInfobox)
	}

	tpl, ok := findInfobox(Templates(markup))
	if !ok {
		return boss.Record{}, fmt.Errorf("page %q: %w", fallbackName, ErrNoInfobox)
	}

	raw := boss.RawFields{Resistances: map[string]string{}}
	for _, p := range tpl.Params {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if elementFields[key] {
			raw.Resistances[key] = p.Value
			continue
		}
		canonical, known := fieldSynonyms[key]
		if !known {
			continue
		}
		assignField(&raw, canonical, p.Value)
	}

	if raw.Name == "" {
		if first, ok := tpl.Get("1"); ok {
			raw.Name = first
		}
	}
	if strings.TrimSpace(raw.Name) == "" {
		raw.Name = fallbackName
	}

	return boss.NewRecord(raw), nil
}

// findInfobox returns the first matching template in document order.
// Primary marker wins on exact name; the secondary marker qualifies only
// when the page is flagged as a boss or carries hp/exp-like data; as a last
// resort any template whose name loosely mentions an infobox boss matches.
func findInfobox(templates []Template) (Template, bool) {
	for _, tpl := range templates {
		name := strings.ToLower(tpl.Name)
		switch {
		case strings.EqualFold(tpl.Name, primaryTemplate):
			return tpl, true
		case strings.EqualFold(tpl.Name, secondaryTemplate) && creatureIsBoss(tpl):
			return tpl, true
		case strings.Contains(name, "infobox") && strings.Contains(name, "boss"):
			return tpl, true
		}
	}
	return Template{}, false
}

func creatureIsBoss(tpl Template) bool {
	for _, flag := range []string{"isboss", "is_boss", "boss"} {
		if v, ok := tpl.Get(flag); ok && affirmative(v) {
			return true
		}
	}
	for _, field := range []string{"hp", "hitpoints", "health", "exp", "experience", "xp"} {
		if _, ok := tpl.Get(field); ok {
			return true
		}
	}
	return false
}

func affirmative(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "y", "1":
		return true
	}
	return false
}

func assignField(raw *boss.RawFields, canonical, value string) {
	if listFields[canonical] || canonical == fieldLocation {
		value = CleanMarkup(value)
	}
	switch canonical {
	case fieldName:
		raw.Name = strings.TrimSpace(value)
	case fieldHP:
		raw.HP = value
	case fieldExp:
		raw.Exp = value
	case fieldSpeed:
		raw.Speed = value
	case fieldVersion:
		raw.Version = value
	case fieldLocation:
		raw.Location = value
	case fieldAbilities:
		raw.Abilities = appendListValue(raw.Abilities, value)
	case fieldSounds:
		raw.Sounds = appendListValue(raw.Sounds, value)
	case fieldLoot:
		raw.Loot = appendListValue(raw.Loot, value)
	case fieldWalksThrough:
		raw.WalksThrough = appendListValue(raw.WalksThrough, value)
	case fieldWeaknesses:
		raw.ElementalWeaknesses = appendListValue(raw.ElementalWeaknesses, value)
	case fieldResistantTo:
		raw.ElementalResistances = appendListValue(raw.ElementalResistances, value)
	case fieldImmunities:
		raw.Immunities = appendListValue(raw.Immunities, value)
	case fieldImage:
		raw.Image = NormalizeImageName(value)
	case fieldBosstiaryClass:
		raw.BosstiaryClass = value
	}
}

// appendListValue concatenates repeated occurrences of the same list field
// instead of overwriting the earlier value.
func appendListValue(existing, value string) string {
	value = strings.TrimSpace(value)
	if existing == "" {
		return value
	}
	if value == "" {
		return existing
	}
	return existing + ", " + value
}

// CleanMarkup strips wiki link syntax, converts line breaks to comma
// separators and drops any remaining tag-like markup.
func CleanMarkup(v string) string {
	v = pipedLink.ReplaceAllString(v, "$1")
	v = bareLink.ReplaceAllString(v, "$1")
	v = lineBreakTag.ReplaceAllString(v, ", ")
	v = residualTag.ReplaceAllString(v, "")
	return strings.TrimSpace(v)
}

// NormalizeImageName reduces an image field to a bare filename: link
// brackets and File:/Image: namespace prefixes are stripped and display or
// size parameters after the first pipe are dropped.
func NormalizeImageName(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "[[")
	v = strings.TrimSuffix(v, "]]")
	v = filePrefix.ReplaceAllString(v, "")
	if i := strings.IndexByte(v, '|'); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
