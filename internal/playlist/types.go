package playlist

import (
	"fmt"
	"strings"
	"time"
)

// AlbumUnknown marks a play whose album was not listed by the source.
const AlbumUnknown = "N/A"

// Consolidation selects how history is grouped into snapshot files.
type Consolidation string

// Supported consolidation modes.
const (
	ConsolidationNone     Consolidation = "none"
	ConsolidationMonthly  Consolidation = "monthly"
	ConsolidationSeasonal Consolidation = "seasonal"
)

// Valid reports whether c is a known consolidation mode.
func (c Consolidation) Valid() bool {
	switch c {
	case ConsolidationNone, ConsolidationMonthly, ConsolidationSeasonal:
		return true
	default:
		return false
	}
}

// TimeFilter splits plays into day and night variants by the show's hour.
// A play is on the light side when its hour falls in [StartHour, EndHour).
type TimeFilter struct {
	StartHour int `mapstructure:"start_hour" json:"start_hour"`
	EndHour   int `mapstructure:"end_hour" json:"end_hour"`
}

// Target is one configured station feed to crawl and export.
type Target struct {
	Name          string        `mapstructure:"name" json:"name"`
	BaseURL       string        `mapstructure:"url" json:"url"`
	ExportFolder  string        `mapstructure:"export_folder" json:"export_folder"`
	Consolidation Consolidation `mapstructure:"consolidation" json:"consolidation"`
	TimeFilter    *TimeFilter   `mapstructure:"time_filter" json:"time_filter,omitempty"`
}

// Validate checks that the target can be crawled and exported.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("target name is required")
	}
	if strings.TrimSpace(t.BaseURL) == "" {
		return fmt.Errorf("target %q: url is required", t.Name)
	}
	if !t.Consolidation.Valid() {
		return fmt.Errorf("target %q: unknown consolidation %q", t.Name, t.Consolidation)
	}
	if t.Consolidation != ConsolidationNone && strings.TrimSpace(t.ExportFolder) == "" {
		return fmt.Errorf("target %q: export_folder is required when consolidation is %q", t.Name, t.Consolidation)
	}
	if f := t.TimeFilter; f != nil {
		if f.StartHour < 0 || f.StartHour > 24 || f.EndHour < 0 || f.EndHour > 24 {
			return fmt.Errorf("target %q: time_filter hours must be within 0..24", t.Name)
		}
		if f.StartHour == f.EndHour {
			return fmt.Errorf("target %q: time_filter start_hour and end_hour must differ", t.Name)
		}
	}
	return nil
}

// FileSlug is the target name as it appears in snapshot file names.
func (t Target) FileSlug() string {
	return strings.ReplaceAll(t.Name, " ", "_")
}

// Show is one broadcast with its own playlist page.
type Show struct {
	URL        string
	TargetName string
	Title      string
	Presenter  string
	DateText   string
	TimeText   string
	IngestedAt time.Time
}

// PlayEvent is one song played during a show.
type PlayEvent struct {
	ShowURL    string
	Artist     string
	Song       string
	Album      string
	IngestedAt time.Time
}

// Key returns the per-show uniqueness key of the play.
func (p PlayEvent) Key() string {
	return p.ShowURL + "\x00" + p.Artist + "\x00" + p.Song
}

// HistoryRow is a play joined with the date and time of its show.
type HistoryRow struct {
	Artist   string
	Song     string
	Album    string
	DateText string
	TimeText string
}

// ListingEntry is one show as it appears on a listing page.
type ListingEntry struct {
	ShowURL   string
	Title     string
	Presenter string
	DateText  string
	TimeText  string
}

// PlayEntry is one row of a show's playlist page.
type PlayEntry struct {
	Artist string
	Song   string
	Album  string
}
