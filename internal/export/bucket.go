package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

// Bucket labels and fallbacks.
const (
	UnknownDate = "Unknown_Date"
	Standard    = "Standard"
	LightSide   = "Light_Side"
	DarkSide    = "Dark_Side"

	// lastSpringMonth is the final month of the spring season; later months are fall.
	lastSpringMonth = time.July
)

var dateLayouts = []string{
	"Jan 2 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon Jan 2 2006",
	"Mon, Jan 2, 2006",
	"1/2/2006",
	"2006-01-02",
}

var timeLayouts = []string{
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
	"15:04",
}

// Bucket is the (time group, variant) partition a play is exported under.
type Bucket struct {
	TimeGroup string
	Variant   string
}

// Key is the file-name suffix of the bucket. The variant is only part of the
// key when the target splits plays by time of day.
func (b Bucket) Key(filtered bool) string {
	if filtered {
		return b.Variant + "_" + b.TimeGroup
	}
	return b.TimeGroup
}

// Classify assigns a history row to its bucket under the target's settings.
func Classify(target playlist.Target, row playlist.HistoryRow) Bucket {
	return Bucket{
		TimeGroup: TimeGroup(target.Consolidation, row.DateText),
		Variant:   Variant(target.TimeFilter, row.TimeText),
	}
}

// TimeGroup maps a show date to "January_2026" (monthly) or "Spring_2026"
// (seasonal). Dates that do not parse fall into UnknownDate.
func TimeGroup(mode playlist.Consolidation, dateText string) string {
	date, ok := ParseDate(dateText)
	if !ok {
		return UnknownDate
	}
	if mode == playlist.ConsolidationSeasonal {
		season := "Fall"
		if date.Month() <= lastSpringMonth {
			season = "Spring"
		}
		return fmt.Sprintf("%s_%d", season, date.Year())
	}
	return fmt.Sprintf("%s_%d", date.Month(), date.Year())
}

// Variant classifies a show time against the filter window. Without a filter
// every play is Standard; a time that does not parse is DarkSide.
func Variant(filter *playlist.TimeFilter, timeText string) string {
	if filter == nil {
		return Standard
	}
	hour, ok := ParseHour(timeText)
	if !ok {
		return DarkSide
	}
	if inWindow(hour, filter.StartHour, filter.EndHour) {
		return LightSide
	}
	return DarkSide
}

// inWindow reports whether hour is in [start, end), wrapping past midnight
// when start > end.
func inWindow(hour, start, end int) bool {
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// ParseDate parses the free-form date text a station lists for a show.
func ParseDate(text string) (time.Time, bool) {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseHour extracts the starting hour (0-23) from a show time such as
// "2:30 AM" or "10:00 PM - 12:00 AM".
func ParseHour(text string) (int, bool) {
	start := text
	for _, sep := range []string{" - ", "–", "—", "-"} {
		if i := strings.Index(start, sep); i > 0 {
			start = start[:i]
		}
	}
	normalized := strings.ToUpper(strings.Join(strings.Fields(start), " "))
	normalized = strings.NewReplacer("A.M.", "AM", "P.M.", "PM").Replace(normalized)
	if normalized == "" {
		return 0, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t.Hour(), true
		}
	}
	return 0, false
}
