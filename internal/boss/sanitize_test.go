package boss

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeInt(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want *int
	}{
		{"50,000 (estimated)", intPtr(50000)},
		{"50,000", intPtr(50000)},
		{"100000", intPtr(100000)},
		{" 230 ", intPtr(230)},
		{"???", nil},
		{"Variable", nil},
		{"unknown", nil},
		{"N/A", nil},
		{"", nil},
		{"no digits here", nil},
	}
	for _, tc := range cases {
		got := SanitizeInt(tc.in)
		if tc.want == nil {
			require.Nil(t, got, "input %q", tc.in)
			continue
		}
		require.NotNil(t, got, "input %q", tc.in)
		require.Equal(t, *tc.want, *got, "input %q", tc.in)
	}
}

func TestSanitizeList(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"Fire, Energy", []string{"Fire", "Energy"}},
		{"Fire, Energy (partial)", []string{"Fire", "Energy"}},
		{"Melee (0-1400), Earth Wave (500-1100)", []string{"Melee", "Earth Wave"}},
		{"None", []string{}},
		{"n/a", []string{}},
		{"???", []string{}},
		{"", []string{}},
		{" Fire ,, Energy ", []string{"Fire", "Energy"}},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, SanitizeList(tc.in), "input %q", tc.in)
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	t.Parallel()

	slugPattern := regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	names := []string{
		"Abyssador",
		"Ferumbras Mortal Shell",
		"Abyssador's Lash",
		"  The   Nightmare  Beast ",
		"Gaz'haragoth",
	}
	for _, name := range names {
		first := Slugify(name)
		second := Slugify(name)
		require.Equal(t, first, second, "slug derivation must be deterministic for %q", name)
		require.True(t, slugPattern.MatchString(first), "slug %q for name %q", first, name)
		require.False(t, strings.HasPrefix(first, "-"))
		require.False(t, strings.HasSuffix(first, "-"))
	}

	require.Equal(t, "abyssador", Slugify("Abyssador"))
	require.Equal(t, "abyssadors-lash", Slugify("Abyssador's Lash"))
	require.Equal(t, "the-nightmare-beast", Slugify("  The   Nightmare  Beast "))
}

func TestBosstiaryKills(t *testing.T) {
	t.Parallel()

	cases := []struct {
		class string
		want  *int
	}{
		{"Nemesis", intPtr(5)},
		{"nemesis boss", intPtr(5)},
		{"Archfoe", intPtr(60)},
		{"Bane", intPtr(2500)},
		{"Mini Boss", nil},
		{"", nil},
	}
	for _, tc := range cases {
		got := BosstiaryKills(tc.class)
		if tc.want == nil {
			require.Nil(t, got, "class %q", tc.class)
			continue
		}
		require.NotNil(t, got, "class %q", tc.class)
		require.Equal(t, *tc.want, *got, "class %q", tc.class)
	}
}

func TestNewRecordAssemblesSanitizedFields(t *testing.T) {
	t.Parallel()

	rec := NewRecord(RawFields{
		Name:           "Abyssador",
		HP:             "340,000",
		Exp:            "400,000",
		Speed:          "230",
		Version:        "9.60",
		WalksThrough:   "Fire, Energy",
		Immunities:     "None",
		Resistances:    map[string]string{"earth": "0", "fire": "85", "holy": "???"},
		BosstiaryClass: "Nemesis",
	})

	require.Equal(t, "Abyssador", rec.Name)
	require.Equal(t, "abyssador", rec.Slug)
	require.Equal(t, 340000, *rec.HP)
	require.Equal(t, 400000, *rec.Exp)
	require.Equal(t, 230, *rec.Speed)
	require.Equal(t, "9.60", *rec.Version)
	require.Equal(t, []string{"Fire", "Energy"}, rec.WalksThrough)
	require.Empty(t, rec.Immunities)
	require.Equal(t, map[string]int{"earth": 0, "fire": 85}, rec.Resistances)
	require.NotNil(t, rec.Bosstiary)
	require.Equal(t, "Nemesis", rec.Bosstiary.ClassName)
	require.Equal(t, 5, *rec.Bosstiary.KillsRequired)

	// No explicit image: the record still gets a derived fallback filename.
	require.NotNil(t, rec.Visuals)
	require.Equal(t, "Abyssador.gif", *rec.Visuals.Filename)
	require.Nil(t, rec.Visuals.ResolvedURL)
}

func TestNewRecordUnnamedHasNoVisuals(t *testing.T) {
	t.Parallel()

	rec := NewRecord(RawFields{HP: "1000"})
	require.Empty(t, rec.Name)
	require.Empty(t, rec.Slug)
	require.Nil(t, rec.Visuals)
}

func intPtr(n int) *int { return &n }
