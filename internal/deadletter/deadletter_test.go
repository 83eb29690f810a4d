package deadletter

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/tibialore/boss-sync/internal/boss"
)

func TestAppendWritesJSONLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "parsing_errors.jsonl")
	l, err := New(path, nil)
	require.NoError(t, err)

	require.NoError(t, l.Append(boss.DeadLetterEntry{
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ItemName:       "Abyssador",
		ErrorSummary:   "no boss infobox template found",
		RawDataSnippet: "some wikitext",
	}))
	require.NoError(t, l.Append(boss.DeadLetterEntry{ItemName: "Morgaroth", ErrorSummary: "fetch failed"}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []boss.DeadLetterEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e boss.DeadLetterEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, entries, 2)
	require.Equal(t, "Abyssador", entries[0].ItemName)
	require.Equal(t, "some wikitext", entries[0].RawDataSnippet)

	n, err := l.Count()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestAppendTruncatesSnippet(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "errors.jsonl")
	l, err := New(path, nil)
	require.NoError(t, err)

	long := strings.Repeat("x", MaxSnippetLength+100)
	require.NoError(t, l.Append(boss.DeadLetterEntry{ItemName: "Big", RawDataSnippet: long}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var e boss.DeadLetterEntry
	require.NoError(t, json.Unmarshal(data, &e))
	require.Len(t, e.RawDataSnippet, MaxSnippetLength+3)
	require.True(t, strings.HasSuffix(e.RawDataSnippet, "..."))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", Truncate("short", 10))
	require.Equal(t, "abc...", Truncate("abcdef", 3))
	require.Equal(t, "", Truncate("", 5))
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	t.Parallel()

	// Multi-byte markup must never be cut mid-rune.
	got := Truncate("Wächter des Feuers", 4)
	require.Equal(t, "Wäch...", got)
	require.True(t, utf8.ValidString(got))

	// Multi-byte text wider than max bytes but within max runes stays whole.
	require.Equal(t, "äöü", Truncate("äöü", 4))
}

func TestCountMissingFile(t *testing.T) {
	t.Parallel()

	l, err := New(filepath.Join(t.TempDir(), "never-written.jsonl"), nil)
	require.NoError(t, err)
	n, err := l.Count()
	require.NoError(t, err)
	require.Zero(t, n)
}
