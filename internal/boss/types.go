// Package boss defines core types shared across subsystems.
package boss

import "time"

// PlaceholderImageURL is assigned to visuals whose image could not be resolved.
const PlaceholderImageURL = "static/placeholder_boss.png"

// Bosstiary kill requirements per tier. Unknown tiers carry no requirement.
const (
	NemesisKills = 5
	ArchfoeKills = 60
	BaneKills    = 2500
)

// Record is the canonical boss entity rebuilt wholesale on every sync run.
type Record struct {
	Name                 string         `json:"name"`
	Slug                 string         `json:"slug"`
	HP                   *int           `json:"hp,omitempty"`
	Exp                  *int           `json:"exp,omitempty"`
	Speed                *int           `json:"speed,omitempty"`
	Version              *string        `json:"version,omitempty"`
	Location             *string        `json:"location,omitempty"`
	Abilities            []string       `json:"abilities"`
	Sounds               []string       `json:"sounds"`
	Loot                 []string       `json:"loot"`
	WalksThrough         []string       `json:"walks_through"`
	ElementalWeaknesses  []string       `json:"elemental_weaknesses"`
	ElementalResistances []string       `json:"elemental_resistances"`
	Immunities           []string       `json:"immunities"`
	Resistances          map[string]int `json:"resistances"`
	Bosstiary            *Bosstiary     `json:"bosstiary,omitempty"`
	Visuals              *Visuals       `json:"visuals,omitempty"`
}

// Bosstiary carries the tier label and its derived kill requirement.
type Bosstiary struct {
	ClassName     string `json:"class_name"`
	KillsRequired *int   `json:"kills_required,omitempty"`
}

// Visuals holds the raw image filename and its resolved URL.
type Visuals struct {
	Filename    *string `json:"filename,omitempty"`
	ResolvedURL *string `json:"resolved_url,omitempty"`
}

// RawFields is the unsanitized field set pulled out of a wiki template.
// Construction of a Record from RawFields is a pure function; see NewRecord.
type RawFields struct {
	Name                 string
	HP                   string
	Exp                  string
	Speed                string
	Version              string
	Location             string
	Abilities            string
	Sounds               string
	Loot                 string
	WalksThrough         string
	ElementalWeaknesses  string
	ElementalResistances string
	Immunities           string
	Resistances          map[string]string
	BosstiaryClass       string
	Image                string
}

// LockState is the lifecycle state of the sync lock document.
type LockState string

// Lock states. The lock is a singleton row shared by all process instances.
const (
	LockIdle    LockState = "idle"
	LockRunning LockState = "running"
)

// LockID is the well-known key of the singleton lock document.
const LockID = "sync_lock"

// LockStatus is a snapshot of the sync lock document.
type LockStatus struct {
	Status    LockState  `json:"status"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

// PageRef identifies one wiki page returned by a category listing.
type PageRef struct {
	PageID int    `json:"pageid"`
	Title  string `json:"title"`
}

// RunSummary is published after every completed sync run.
type RunSummary struct {
	Listed      int       `json:"listed"`
	Extracted   int       `json:"extracted"`
	Saved       int       `json:"saved"`
	SuccessRate float64   `json:"success_rate"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Skipped     bool      `json:"skipped"`
}

// DeadLetterEntry records one per-item pipeline failure for later inspection.
type DeadLetterEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	ItemName       string    `json:"item_name"`
	ErrorSummary   string    `json:"error_summary"`
	RawDataSnippet string    `json:"raw_data_snippet"`
}
